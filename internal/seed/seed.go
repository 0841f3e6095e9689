// Package seed provides helpers to create development and demo data.
// These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"log"
	"time"

	"github.com/Nihad1903/azmiu-guest-web/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	NumManagers int
	NumRequests int
	ShouldClean bool
}

// Seeder populates the database with demo users and guest requests.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a Seeder bound to the given database.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// ClearAll removes all seeded data. Requests go first because they
// reference users.
func (s *Seeder) ClearAll() error {
	log.Println("Clearing existing data...")
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.GuestRequest{}).Error; err != nil {
		return fmt.Errorf("clearing guest requests: %w", err)
	}
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("clearing users: %w", err)
	}
	return nil
}

// CreateSuperuser creates the admin account if it does not already exist.
func (s *Seeder) CreateSuperuser(username, password string) (*models.User, error) {
	var existing models.User
	err := s.db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hashed),
		Role:     models.RoleSuperuser,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateManagers creates n manager accounts with fake identities. All
// accounts share the given password so demo logins stay simple.
func (s *Seeder) CreateManagers(n int, password string) ([]models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	managers := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		username := fmt.Sprintf("%s%d", gofakeit.Username(), i)
		managers = append(managers, models.User{
			Username: username,
			Email:    gofakeit.Email(),
			Password: string(hashed),
			Role:     models.RoleManager,
		})
	}
	if err := s.db.Create(&managers).Error; err != nil {
		return nil, fmt.Errorf("creating managers: %w", err)
	}
	return managers, nil
}

// CreateRequests creates n guest requests spread across the given
// managers, all PENDING.
func (s *Seeder) CreateRequests(managers []models.User, n int) ([]models.GuestRequest, error) {
	if len(managers) == 0 {
		return nil, fmt.Errorf("no managers to own requests")
	}

	requests := make([]models.GuestRequest, 0, n)
	for i := 0; i < n; i++ {
		manager := managers[i%len(managers)]
		requests = append(requests, models.GuestRequest{
			ManagerID:    manager.ID,
			GuestName:    gofakeit.FirstName(),
			GuestSurname: gofakeit.LastName(),
			GuestEmail:   gofakeit.Email(),
			GuestPhone:   gofakeit.Phone(),
			Remark:       gofakeit.Sentence(6),
			Status:       models.RequestStatusPending,
			CreatedAt:    gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now()),
		})
	}
	if err := s.db.Create(&requests).Error; err != nil {
		return nil, fmt.Errorf("creating guest requests: %w", err)
	}
	return requests, nil
}

// Run executes a full seed pass according to the options.
func (s *Seeder) Run(opts Options) error {
	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}

	admin, err := s.CreateSuperuser("admin", "admin12345")
	if err != nil {
		return fmt.Errorf("creating superuser: %w", err)
	}
	log.Printf("Superuser ready: %s", admin.Username)

	managers, err := s.CreateManagers(opts.NumManagers, "manager12345")
	if err != nil {
		return err
	}
	log.Printf("Created %d managers", len(managers))

	requests, err := s.CreateRequests(managers, opts.NumRequests)
	if err != nil {
		return err
	}
	log.Printf("Created %d pending guest requests", len(requests))
	return nil
}
