package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoomRecord is the persisted shape of a room. Durable rooms (the named
// family rooms of the care app) survive emptying: they are flipped
// inactive instead of removed.
type RoomRecord struct {
	Name         string    `bson:"name" json:"name"`
	Participants []string  `bson:"participants" json:"participants"`
	IsActive     bool      `bson:"isActive" json:"isActive"`
	Durable      bool      `bson:"durable" json:"durable"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// UserRecord resolves a participant id to a display name. Used by the UI
// layer only, never by the signaling or mesh algorithms.
type UserRecord struct {
	UserID      string `bson:"userId" json:"userId"`
	DisplayName string `bson:"displayName" json:"displayName"`
}

// Store is the MongoDB-backed persistence collaborator for rooms and the
// user directory.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewStore(ctx context.Context, uri string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, err
	}

	return &Store{client: client, db: client.Database("carebell")}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) rooms() *mongo.Collection {
	return s.db.Collection("rooms")
}

func (s *Store) users() *mongo.Collection {
	return s.db.Collection("users")
}

// UpdateRoom upserts a room record with its current participant list.
// An empty list marks the room inactive. Implements signaling.RoomStore.
func (s *Store) UpdateRoom(ctx context.Context, room string, participants []string) error {
	if participants == nil {
		participants = []string{}
	}
	now := time.Now().UTC()

	_, err := s.rooms().UpdateOne(ctx,
		bson.M{"name": room},
		bson.M{
			"$set": bson.M{
				"participants": participants,
				"isActive":     len(participants) > 0,
				"updatedAt":    now,
			},
			"$setOnInsert": bson.M{
				"name":      room,
				"durable":   false,
				"createdAt": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// DurableRooms lists room names that survive emptying. Implements
// signaling.RoomStore.
func (s *Store) DurableRooms(ctx context.Context) ([]string, error) {
	cursor, err := s.rooms().Find(ctx, bson.M{"durable": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []RoomRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.Name)
	}
	return names, nil
}

// CreateDurableRoom registers a named room that is kept when empty.
func (s *Store) CreateDurableRoom(ctx context.Context, name string) (*RoomRecord, error) {
	now := time.Now().UTC()
	record := &RoomRecord{
		Name:         name,
		Participants: []string{},
		IsActive:     false,
		Durable:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.rooms().UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{
			"$set":         bson.M{"durable": true, "updatedAt": now},
			"$setOnInsert": bson.M{"name": name, "participants": []string{}, "isActive": false, "createdAt": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetRoom finds one room record by name.
func (s *Store) GetRoom(ctx context.Context, name string) (*RoomRecord, error) {
	var record RoomRecord
	err := s.rooms().FindOne(ctx, bson.M{"name": name}).Decode(&record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DisplayName resolves a participant id for UI purposes. Unknown ids fall
// back to the raw id.
func (s *Store) DisplayName(ctx context.Context, userID string) string {
	var record UserRecord
	err := s.users().FindOne(ctx, bson.M{"userId": userID}).Decode(&record)
	if err != nil || record.DisplayName == "" {
		return userID
	}
	return record.DisplayName
}

// UpsertUser stores a participant's display name.
func (s *Store) UpsertUser(ctx context.Context, userID, displayName string) error {
	_, err := s.users().UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$set": bson.M{"userId": userID, "displayName": displayName}},
		options.Update().SetUpsert(true),
	)
	return err
}
