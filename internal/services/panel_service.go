package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safesurf-vpn/safesurf-backend/internal/dto"
	"github.com/safesurf-vpn/safesurf-backend/internal/models"
)

var ErrPanelNotFound = errors.New("panel not found")

// PanelService is the admin-side registry of 3x-ui panels.
type PanelService struct {
	db    *gorm.DB
	panel PanelAPI
}

func NewPanelService(db *gorm.DB, panel PanelAPI) *PanelService {
	return &PanelService{db: db, panel: panel}
}

func (s *PanelService) List(ctx context.Context) ([]models.XUIPanel, error) {
	var panels []models.XUIPanel
	err := s.db.Order("name ASC").Find(&panels).Error
	return panels, err
}

func (s *PanelService) Get(ctx context.Context, id uuid.UUID) (*models.XUIPanel, error) {
	var panel models.XUIPanel
	if err := s.db.First(&panel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPanelNotFound
		}
		return nil, err
	}
	return &panel, nil
}

func (s *PanelService) Create(ctx context.Context, req *dto.PanelRequest) (*models.XUIPanel, error) {
	panel := models.XUIPanel{
		ID:       uuid.New(),
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		APIURL:   req.APIURL,
		Location: req.Location,
		IsActive: true,
	}
	if req.IsActive != nil {
		panel.IsActive = *req.IsActive
	}
	if err := s.db.Create(&panel).Error; err != nil {
		return nil, err
	}
	return &panel, nil
}

func (s *PanelService) Update(ctx context.Context, id uuid.UUID, req *dto.PanelRequest) (*models.XUIPanel, error) {
	panel, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		panel.Name = req.Name
	}
	if req.Host != "" {
		panel.Host = req.Host
	}
	if req.Port != 0 {
		panel.Port = req.Port
	}
	if req.Username != "" {
		panel.Username = req.Username
	}
	if req.Password != "" {
		panel.Password = req.Password
	}
	if req.APIURL != "" {
		panel.APIURL = req.APIURL
	}
	if req.Location != "" {
		panel.Location = req.Location
	}
	if req.IsActive != nil {
		panel.IsActive = *req.IsActive
	}

	if err := s.db.Save(panel).Error; err != nil {
		return nil, err
	}
	return panel, nil
}

func (s *PanelService) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.Delete(&models.XUIPanel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPanelNotFound
	}
	return nil
}

// TestConnection logs in and lists inbounds, reporting the outcome as data.
// A dead panel is a normal answer here, not an error.
func (s *PanelService) TestConnection(ctx context.Context, id uuid.UUID) (*dto.TestConnectionResponse, error) {
	panel, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	session, err := s.panel.Login(ctx, panel)
	if err != nil {
		return &dto.TestConnectionResponse{
			Success:   false,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}, nil
	}

	inbounds, err := s.panel.ListInbounds(ctx, session)
	if err != nil {
		return &dto.TestConnectionResponse{
			Success:   false,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}, nil
	}

	return &dto.TestConnectionResponse{
		Success:      true,
		LatencyMs:    time.Since(start).Milliseconds(),
		InboundCount: len(inbounds),
	}, nil
}
