package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Driver: "mysql",
			Host:   "localhost",
			User:   "test",
			DBName: "test",
		},
		Mail:      MailConfig{Provider: "log"},
		Send:      SendConfig{Concurrency: 1},
		Scheduler: SchedulerConfig{Enabled: true, IntervalMinutes: 5},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	invalid := &Config{Server: ServerConfig{Port: ""}}
	assert.Error(t, invalid.Validate())
}

func TestConfigValidationMailProviders(t *testing.T) {
	cfg := validConfig()
	cfg.Mail = MailConfig{Provider: "gmail", From: "news@example.com"}
	assert.Error(t, cfg.Validate())

	cfg.Mail.Gmail = GmailConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "token"}
	assert.NoError(t, cfg.Validate())

	cfg.Mail = MailConfig{Provider: "mailgun"}
	assert.Error(t, cfg.Validate(), "from address is required")

	cfg.Mail = MailConfig{Provider: "http", From: "news@example.com", HTTP: HTTPAPIConfig{BaseURL: "https://api.example.com"}}
	assert.Error(t, cfg.Validate(), "api key is required")

	cfg.Mail = MailConfig{Provider: "carrier-pigeon", From: "news@example.com"}
	assert.Error(t, cfg.Validate())
}

func TestConfigValidationOptionalSubsystems(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.BounceSweep = true
	assert.Error(t, cfg.Validate())

	cfg.IMAP = IMAPConfig{Host: "imap.example.com", User: "bounces", Password: "pw"}
	assert.NoError(t, cfg.Validate())

	cfg.Send.Concurrency = 0
	assert.Error(t, cfg.Validate())
	cfg.Send.Concurrency = 4

	cfg.Queue = QueueConfig{Enabled: true}
	assert.Error(t, cfg.Validate())

	cfg.Database = DatabaseConfig{Driver: "sqlite"}
	cfg.Queue = QueueConfig{}
	assert.Error(t, cfg.Validate())
	cfg.Database.Path = "file::memory:"
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	config := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	dsn := config.GetDSN()
	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, dsn)

	config.Driver = "postgres"
	config.Port = 5432
	config.SSLMode = "disable"
	assert.Equal(t, "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable", config.GetDSN())

	config.Driver = "sqlite"
	config.Path = "mailer.db"
	assert.Equal(t, "mailer.db", config.GetDSN())
}
