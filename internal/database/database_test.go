package database

import (
	"testing"

	"device-ingest/configs"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Warn, gormLogLevel(configs.EnvProd))
	assert.Equal(t, gormlogger.Info, gormLogLevel(configs.EnvDev))
	assert.Equal(t, gormlogger.Info, gormLogLevel(configs.EnvLocal))
}

func TestGetReadDB_RoundRobin(t *testing.T) {
	write, r1, r2 := &gorm.DB{}, &gorm.DB{}, &gorm.DB{}

	m := &DBManager{WriteDB: write}
	assert.Same(t, write, m.GetReadDB(), "falls back to the write db without replicas")

	m.ReadDBs = []*gorm.DB{r1, r2}
	assert.Same(t, r1, m.GetReadDB())
	assert.Same(t, r2, m.GetReadDB())
	assert.Same(t, r1, m.GetReadDB())
}
