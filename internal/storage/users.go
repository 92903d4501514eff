package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
)

// SaveUser inserts or replaces a user profile.
func (s *SQLiteStorage) SaveUser(ctx context.Context, user model.User) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUser(&user); err != nil {
		return err
	}

	trusted, err := encodeLocations(user.Travel.TrustedLocations)
	if err != nil {
		return err
	}

	status := user.Status
	if status == "" {
		status = model.UserActive
	}
	location := strings.TrimSpace(user.Location)
	if location == "" {
		location = model.UnknownValue
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, phone, location, status,
			travel_mode, trusted_locations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone = excluded.phone,
			location = excluded.location,
			status = excluded.status,
			travel_mode = excluded.travel_mode,
			trusted_locations = excluded.trusted_locations`,
		user.ID, user.FirstName, user.LastName, user.Email, user.Phone, location, string(status),
		user.Travel.TravelModeEnabled, trusted, user.CreatedAt.UTC(),
	)
	if err != nil {
		return mapError(err, fmt.Sprintf("failed to save user %s", user.ID))
	}

	slog.Debug("Saved user", "user_id", user.ID)
	return nil
}

// GetUser returns the user with the given ID.
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var (
		user    model.User
		status  string
		trusted string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, phone, location, status,
			travel_mode, trusted_locations, created_at
		FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Phone, &user.Location,
		&status, &user.Travel.TravelModeEnabled, &trusted, &user.CreatedAt)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user %s", id))
	}

	user.Status = model.UserStatus(status)
	if user.Travel.TrustedLocations, err = decodeLocations(trusted); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetTravelSettings returns the user's travel settings. Unknown users get the
// zero settings.
func (s *SQLiteStorage) GetTravelSettings(ctx context.Context, userID string) (model.TravelSettings, error) {
	if strings.TrimSpace(userID) == "" || userID == model.UnknownValue {
		return model.TravelSettings{}, nil
	}

	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return model.TravelSettings{}, nil
	}
	if err != nil {
		return model.TravelSettings{}, err
	}
	return user.Travel, nil
}

// SetTravelMode toggles travel mode and replaces the trusted locations.
func (s *SQLiteStorage) SetTravelMode(ctx context.Context, userID string, enabled bool, trusted []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	encoded, err := encodeLocations(trusted)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET travel_mode = ?, trusted_locations = ? WHERE id = ?`,
		enabled, encoded, userID)
	if err != nil {
		return fmt.Errorf("failed to update travel mode for user %s: %w", userID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return mapError(sql.ErrNoRows, fmt.Sprintf("user %s", userID))
	}
	return nil
}

func encodeLocations(locations []string) (string, error) {
	cleaned := make([]string, 0, len(locations))
	for _, loc := range locations {
		if loc = strings.TrimSpace(loc); loc != "" {
			cleaned = append(cleaned, loc)
		}
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to encode trusted locations: %w", err)
	}
	return string(data), nil
}

func decodeLocations(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var locations []string
	if err := json.Unmarshal([]byte(data), &locations); err != nil {
		return nil, fmt.Errorf("failed to decode trusted locations: %w", err)
	}
	return locations, nil
}
