package devserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func (s *Server) listJobCards(c *gin.Context) {
	var cards []JobCard
	query := s.db.Order("created_at")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&cards).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list job cards")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (s *Server) listEmployees(c *gin.Context) {
	var employees []Employee
	if err := s.db.Order("name").Find(&employees).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list employees")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, employees)
}

func (s *Server) listAttendance(c *gin.Context) {
	var records []AttendanceRecord
	if err := s.db.Order("clock_in DESC").Find(&records).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list attendance")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// seed creates the configured login user and, on an empty database, a
// handful of workshop rows
func (s *Server) seed() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Where("username = ?", s.config.Username).First(&user).Error
		if err == gorm.ErrRecordNotFound {
			hash, err := HashPassword(s.config.Password)
			if err != nil {
				return err
			}
			user = User{
				Username:     s.config.Username,
				Email:        s.config.Email,
				PasswordHash: hash,
				Name:         s.config.Name,
				IsStaff:      true,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create seed user: %w", err)
			}
			s.logger.Info().Str("username", user.Username).Msg("Created seed user")
		} else if err != nil {
			return fmt.Errorf("failed to look up seed user: %w", err)
		}

		var count int64
		if err := tx.Model(&Employee{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count employees: %w", err)
		}
		if count > 0 {
			return nil
		}

		employees := []Employee{
			{Name: "Dev Patel", Role: "mechanic"},
			{Name: "Sam Okafor", Role: "mechanic"},
			{Name: "Rita Gomes", Role: "service advisor"},
		}
		if err := tx.Create(&employees).Error; err != nil {
			return fmt.Errorf("failed to seed employees: %w", err)
		}

		cards := []JobCard{
			{Registration: "KA01 AB 1234", Customer: "R. Sharma", Description: "Annual service", Status: "open", AssignedTo: employees[0].ID},
			{Registration: "KA05 MN 9876", Customer: "L. Fernandes", Description: "Brake pads front", Status: "in_progress", AssignedTo: employees[1].ID},
			{Registration: "KA03 XY 4321", Customer: "A. Khan", Description: "Clutch replacement", Status: "done", AssignedTo: employees[0].ID},
		}
		if err := tx.Create(&cards).Error; err != nil {
			return fmt.Errorf("failed to seed job cards: %w", err)
		}

		start := s.now().Truncate(24 * time.Hour).Add(9 * time.Hour)
		end := start.Add(8 * time.Hour)
		records := []AttendanceRecord{
			{EmployeeID: employees[0].ID, ClockIn: start, ClockOut: &end},
			{EmployeeID: employees[1].ID, ClockIn: start.Add(30 * time.Minute)},
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to seed attendance: %w", err)
		}

		s.logger.Info().Msg("Seeded workshop data")
		return nil
	})
}
