package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

var errNoSession = errors.New("mongo: lock requested outside a transaction")

// MongoReservationStore implements reservation.Store on MongoDB.
//
// A unit of work is a multi-document transaction with snapshot read concern.
// Locks are writes: LockCar bumps a per-car document in car_locks and
// GetReservationForUpdate bumps the reservation's lock_version, so two
// transactions touching the same car or row cannot both commit. The loser
// gets a transient write conflict and WithTransaction retries it on a
// fresh snapshot, where it sees the winner's reservation.
type MongoReservationStore struct {
	client       *mongo.Client
	reservations *mongo.Collection
	carLocks     *mongo.Collection
}

func NewMongoReservationStore(client *mongo.Client, database *mongo.Database) *MongoReservationStore {
	return &MongoReservationStore{
		client:       client,
		reservations: database.Collection(ReservationsCollection),
		carLocks:     database.Collection(CarLocksCollection),
	}
}

func (s *MongoReservationStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txOpts)
	return err
}

func (s *MongoReservationStore) LockCar(ctx context.Context, carID string) error {
	if mongo.SessionFromContext(ctx) == nil {
		return errNoSession
	}
	_, err := s.carLocks.UpdateOne(ctx,
		bson.M{"_id": carID},
		bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"locked_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("lock car %s: %w", carID, err)
	}
	return nil
}

func (s *MongoReservationStore) GetReservationForUpdate(ctx context.Context, id string) (models.Reservation, error) {
	if mongo.SessionFromContext(ctx) != nil {
		result, err := s.reservations.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$inc": bson.M{"lock_version": 1}},
		)
		if err != nil {
			return models.Reservation{}, fmt.Errorf("lock reservation %s: %w", id, err)
		}
		if result.MatchedCount == 0 {
			return models.Reservation{}, reservation.ErrReservationNotFound
		}
	}
	return s.GetReservation(ctx, id)
}

func (s *MongoReservationStore) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	var r models.Reservation
	err := s.reservations.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Reservation{}, reservation.ErrReservationNotFound
		}
		return models.Reservation{}, fmt.Errorf("find reservation %s: %w", id, err)
	}
	return r, nil
}

func (s *MongoReservationStore) FindOverlapping(ctx context.Context, carID string, start, end time.Time, excludeID string) (*models.Reservation, error) {
	filter := overlapFilter(carID, start, end, excludeID)
	opts := options.FindOne().SetSort(bson.D{{Key: "start_at", Value: 1}, {Key: "_id", Value: 1}})

	var r models.Reservation
	err := s.reservations.FindOne(ctx, filter, opts).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find overlapping reservations: %w", err)
	}
	return &r, nil
}

// overlapFilter selects occupying reservations of carID with start < end_new and end > start_new.
func overlapFilter(carID string, start, end time.Time, excludeID string) bson.M {
	filter := bson.M{
		"car_id":   carID,
		"status":   bson.M{"$in": models.OccupyingStatuses},
		"start_at": bson.M{"$lt": end},
		"end_at":   bson.M{"$gt": start},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

func (s *MongoReservationStore) InsertReservation(ctx context.Context, r models.Reservation) error {
	if _, err := s.reservations.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("insert reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *MongoReservationStore) UpdateReservation(ctx context.Context, r models.Reservation) error {
	result, err := s.reservations.UpdateOne(ctx,
		bson.M{"_id": r.ID},
		bson.M{"$set": bson.M{
			"start_at":   r.StartAt,
			"end_at":     r.EndAt,
			"status":     r.Status,
			"purpose":    r.Purpose,
			"updated_at": r.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("update reservation %s: %w", r.ID, err)
	}
	if result.MatchedCount == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

func (s *MongoReservationStore) ListReservations(ctx context.Context, filter reservation.ListFilter) ([]models.Reservation, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.CarID != "" {
		query["car_id"] = filter.CarID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := s.reservations.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Reservation{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode reservations: %w", err)
	}
	return out, nil
}
