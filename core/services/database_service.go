package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/entities"
	"github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connector is the global database connector instance.
var Connector *gorm.DB

// ConnectorConfig holds the configuration for the database connector.
type ConnectorConfig struct {
	Driver   string // "postgres"
	Host     string
	Port     string
	User     string
	DBName   string
	Password string
}

func buildConnectorConfig() *ConnectorConfig {
	return &ConnectorConfig{
		Driver:   config.EnvDBDriver(),
		Host:     config.EnvDBHost(),
		Port:     config.EnvDBPort(),
		User:     config.EnvDBUser(),
		Password: config.EnvDBPassword(),
		DBName:   config.EnvDBName(),
	}
}

func connectorURL(connectorConfig *ConnectorConfig) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		connectorConfig.Host,
		connectorConfig.Port,
		connectorConfig.User,
		connectorConfig.DBName,
		connectorConfig.Password,
	)
}

// OpenConnection opens a new database connection.
func OpenConnection(log logger.Logger) *errors.AppError {
	connConfig := buildConnectorConfig()
	dsn := connectorURL(connConfig)

	environment := config.EnvironmentConfig()
	isProduction := environment == entities.Environment.Production

	gormCfg := &gorm.Config{}
	if isProduction {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
	} else {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		appErr := errors.NewAppError(entities.ErrDatabase, err.Error(), map[string]interface{}{"dsn": dsn}, err)
		log.LogError(context.Background(), "Failed to connect to database", appErr)
		return appErr
	}

	sqlDB, err := db.DB()
	if err != nil {
		appErr := errors.NewAppError(entities.ErrDatabase, "failed to get underlying sql.DB", map[string]interface{}{"error": err.Error()}, err)
		log.LogError(context.Background(), "Database handle retrieval failed", appErr)
		return appErr
	}

	if err := sqlDB.Ping(); err != nil {
		appErr := errors.NewAppError(entities.ErrDatabase, "Failed to ping database after connection", map[string]interface{}{"error": err.Error()}, err)
		log.LogError(context.Background(), "Database ping failed", appErr)
		return appErr
	}

	isDevelopment := environment == entities.Environment.Development
	if isDevelopment {
		log.Info(context.Background(), "Database connection established", map[string]interface{}{
			"dsn": dsn,
		})
	} else {
		log.Info(context.Background(), "Database connection established", map[string]interface{}{
			"host":   connConfig.Host,
			"port":   connConfig.Port,
			"dbname": connConfig.DBName,
			"user":   connConfig.User,
		})
	}

	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	sqlDB.SetMaxIdleConns(30)
	Connector = db

	go watchConnection(log, dsn, gormCfg)

	return nil
}

// watchConnection pings the connection pool periodically and reconnects with
// a backoff schedule if the database becomes unreachable.
func watchConnection(log logger.Logger, dsn string, gormCfg *gorm.Config) {
	intervals := []time.Duration{3 * time.Second, 3 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second}
	for {
		time.Sleep(60 * time.Second)

		sqlDB, err := Connector.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err == nil {
			continue
		}

		appErr := errors.NewAppError(entities.ErrDatabase, err.Error(), nil, err)
		log.LogError(context.Background(), "Database ping failed", appErr)

	retry:
		for i := 0; i < len(intervals); i++ {
			reconnErr := RetryHandler(3, func() (bool, error) {
				db, e := gorm.Open(postgres.Open(dsn), gormCfg)
				if e != nil {
					appErr := errors.NewAppError(entities.ErrDatabase, e.Error(), nil, e)
					log.LogError(context.Background(), "Database retry failed", appErr)
					return false, e
				}
				Connector = db
				log.Info(context.Background(), "Database reconnected successfully")
				return true, nil
			})
			if reconnErr != nil {
				appErr := errors.NewAppError(entities.ErrDatabase, reconnErr.Error(), nil, reconnErr)
				log.LogError(context.Background(), "Database retry failed, will retry again", appErr)
				time.Sleep(intervals[i])
				if i == len(intervals)-1 {
					i--
				}
				continue
			}
			break retry
		}
	}
}

// RetryHandler handles retry logic for database operations.
func RetryHandler(n int, f func() (bool, error)) error {
	ok, er := f()
	if ok && er == nil {
		return nil
	}
	if n-1 > 0 {
		return RetryHandler(n-1, f)
	}
	return er
}
