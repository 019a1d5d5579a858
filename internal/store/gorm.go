package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arosh/isucon6-final/internal/model"
)

// DB is the gorm/postgres implementation of Store.
type DB struct {
	db *gorm.DB
}

// New wraps a gorm handle as a Store.
func New(db *gorm.DB) *DB {
	return &DB{db: db}
}

func (s *DB) CreateToken(ctx context.Context) (*model.Token, error) {
	token := &model.Token{}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, err
	}
	return token, nil
}

func (s *DB) CreateRoom(ctx context.Context, name string, canvasWidth, canvasHeight int, tokenID int64) (*model.Room, error) {
	room := &model.Room{
		Name:         name,
		CanvasWidth:  canvasWidth,
		CanvasHeight: canvasHeight,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		owner := &model.RoomOwner{RoomID: room.ID, TokenID: tokenID}
		return tx.Create(owner).Error
	})
	if err != nil {
		return nil, err
	}
	room.Strokes = []model.Stroke{}
	return room, nil
}

func (s *DB) GetRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	var room model.Room
	err := s.db.WithContext(ctx).First(&room, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// roomActivity is the scan target for the listing aggregate.
type roomActivity struct {
	ID           int64
	Name         string
	CanvasWidth  int
	CanvasHeight int
	CreatedAt    time.Time
	MaxStrokeID  int64
	StrokeCount  int
}

func (s *DB) ListRooms(ctx context.Context, limit int) ([]model.Room, error) {
	var rows []roomActivity
	err := s.db.WithContext(ctx).Raw(`
		SELECT rooms.id, rooms.name, rooms.canvas_width, rooms.canvas_height, rooms.created_at,
		       MAX(strokes.id) AS max_stroke_id,
		       COUNT(strokes.id) AS stroke_count
		FROM rooms
		JOIN strokes ON strokes.room_id = rooms.id
		GROUP BY rooms.id
		ORDER BY max_stroke_id DESC
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	rooms := make([]model.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, model.Room{
			ID:           row.ID,
			Name:         row.Name,
			CanvasWidth:  row.CanvasWidth,
			CanvasHeight: row.CanvasHeight,
			CreatedAt:    row.CreatedAt,
			Strokes:      []model.Stroke{},
			StrokeCount:  row.StrokeCount,
		})
	}
	return rooms, nil
}

func (s *DB) ListStrokes(ctx context.Context, roomID, afterID int64) ([]model.Stroke, error) {
	strokes := []model.Stroke{}
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND id > ?", roomID, afterID).
		Order("id ASC").
		Find(&strokes).Error
	if err != nil {
		return nil, err
	}
	return strokes, nil
}

func (s *DB) ListPoints(ctx context.Context, roomID, afterID int64) ([]model.Point, error) {
	points := []model.Point{}
	err := s.db.WithContext(ctx).Model(&model.Point{}).
		Select("points.id, points.stroke_id, points.x, points.y").
		Joins("JOIN strokes ON strokes.id = points.stroke_id").
		Where("strokes.room_id = ? AND strokes.id > ?", roomID, afterID).
		Order("points.id ASC").
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (s *DB) IsRoomOwner(ctx context.Context, roomID, tokenID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.RoomOwner{}).
		Where("room_id = ? AND token_id = ?", roomID, tokenID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *DB) AppendStroke(ctx context.Context, roomID, tokenID int64, stroke model.Stroke, points []model.Point) (*model.Stroke, error) {
	created := stroke
	created.RoomID = roomID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the room row so concurrent first strokes serialize here.
		var room model.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		var strokeCount int64
		if err := tx.Model(&model.Stroke{}).Where("room_id = ?", roomID).Count(&strokeCount).Error; err != nil {
			return err
		}
		if strokeCount == 0 {
			var ownerCount int64
			if err := tx.Model(&model.RoomOwner{}).
				Where("room_id = ? AND token_id = ?", roomID, tokenID).
				Count(&ownerCount).Error; err != nil {
				return err
			}
			if ownerCount == 0 {
				return ErrNotOwner
			}
		}

		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		for i := range points {
			points[i].StrokeID = created.ID
		}
		if len(points) > 0 {
			if err := tx.Create(&points).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created.Points = points
	return &created, nil
}
