package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// Models returns every model the engine persists, in migration order
func Models() []interface{} {
	return []interface{}{
		&Organization{},
		&Alert{},
		&AlertGroupingRule{},
		&AlertGroup{},
		&AlertRoutingRule{},
		&EscalationPolicy{},
		&EscalationInstance{},
		&OnCallSchedule{},
		&AlertCorrelation{},
		&CorrelationSettings{},
		&RateLimitConfig{},
		&AlertRunbook{},
		&ManagedIncident{},
		&IncidentNote{},
		&IncidentResponder{},
		&IncidentTimelineEvent{},
	}
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	if err := DB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	log.Println("Initializing default database records...")

	var count int64
	DB.Model(&Organization{}).Count(&count)
	if count == 0 {
		org := &Organization{Name: "Default Organization", Slug: "default"}
		if err := DB.Create(org).Error; err != nil {
			return fmt.Errorf("failed to create default organization: %w", err)
		}
		log.Printf("Created default organization (ID: %d)", org.ID)
	}

	var orgs []Organization
	if err := DB.Find(&orgs).Error; err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}
	for _, org := range orgs {
		if _, err := GetOrCreateRateLimitConfig(DB, org.ID); err != nil {
			return fmt.Errorf("failed to seed rate limit config for org %d: %w", org.ID, err)
		}
		if _, err := GetOrCreateCorrelationSettings(DB, org.ID); err != nil {
			return fmt.Errorf("failed to seed correlation settings for org %d: %w", org.ID, err)
		}
	}

	return nil
}

// GetOrCreateRateLimitConfig retrieves or creates the per-org rate limit
// config. Accepts a db parameter for transaction contexts and testing.
func GetOrCreateRateLimitConfig(db *gorm.DB, orgID uint) (*RateLimitConfig, error) {
	var cfg RateLimitConfig
	result := db.Where("organization_id = ?", orgID).First(&cfg)
	if result.Error == gorm.ErrRecordNotFound {
		cfg = *NewDefaultRateLimitConfig(orgID)
		if err := db.Create(&cfg).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &cfg, nil
}

// GetOrCreateCorrelationSettings retrieves or creates the per-org
// correlation settings.
func GetOrCreateCorrelationSettings(db *gorm.DB, orgID uint) (*CorrelationSettings, error) {
	var settings CorrelationSettings
	result := db.Where("organization_id = ?", orgID).First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *NewDefaultCorrelationSettings(orgID)
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// GetDefaultEscalationPolicy returns the organization's default policy, or
// nil when none is marked default.
func GetDefaultEscalationPolicy(db *gorm.DB, orgID uint) (*EscalationPolicy, error) {
	var policy EscalationPolicy
	err := db.Where("organization_id = ? AND is_default = ? AND enabled = ?", orgID, true, true).First(&policy).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
