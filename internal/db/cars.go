package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCarCollection implements CarCollection for MongoDB
type MongoCarCollection struct {
	Collection *mongo.Collection
}

// GetCar finds a car by its ID
func (c *MongoCarCollection) GetCar(ctx context.Context, id string) (models.Car, error) {
	if c.Collection == nil {
		return models.Car{}, fmt.Errorf("mongo collection is nil")
	}

	var car models.Car
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&car)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Car{}, reservation.ErrCarNotFound
		}
		return models.Car{}, fmt.Errorf("find car %s: %w", id, err)
	}
	return car, nil
}

// ListCars returns the cars matching filter in the requested order
func (c *MongoCarCollection) ListCars(ctx context.Context, filter models.CarFilter) ([]models.Car, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	query, sort, err := carQuery(filter)
	if err != nil {
		return nil, err
	}

	cursor, err := c.Collection.Find(ctx, query, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("find cars: %w", err)
	}
	defer cursor.Close(ctx)

	cars := []models.Car{}
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, fmt.Errorf("decode cars: %w", err)
	}
	return cars, nil
}

// carQuery translates a CarFilter into a find filter and sort document.
// The search term is matched literally.
func carQuery(filter models.CarFilter) (bson.M, bson.D, error) {
	field, desc, err := filter.SortKey()
	if err != nil {
		return nil, nil, err
	}
	direction := 1
	if desc {
		direction = -1
	}
	sort := bson.D{{Key: field, Value: direction}, {Key: "_id", Value: 1}}

	query := bson.M{}
	if filter.AvailableOnly {
		query["status"] = models.CarStatusAvailable
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"registration_number": pattern},
			bson.M{"brand": pattern},
			bson.M{"model": pattern},
		}
	}
	return query, sort, nil
}

// InsertCar inserts a new car into the database
func (c *MongoCarCollection) InsertCar(ctx context.Context, car models.Car) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}

	now := time.Now().UTC()
	if car.CreatedAt.IsZero() {
		car.CreatedAt = now
	}
	car.UpdatedAt = now

	_, err := c.Collection.InsertOne(ctx, car)
	return err
}

// UpdateCarStatus sets the operational status of a car
func (c *MongoCarCollection) UpdateCarStatus(ctx context.Context, id string, status models.CarStatus) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}

	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update car %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return reservation.ErrCarNotFound
	}
	return nil
}
