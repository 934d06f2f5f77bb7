package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CartStore keeps session-scoped cart selections in a Redis hash. Quantities
// here are tentative: nothing is reserved until checkout.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func (c *CartStore) Client() *redis.Client {
	return c.client
}

func cartKey(session string) string {
	return "cart:" + session
}

func (c *CartStore) SetLine(ctx context.Context, session string, ticketTypeID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return c.RemoveLine(ctx, session, ticketTypeID)
	}
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, cartKey(session), ticketTypeID.String(), quantity)
	pipe.Expire(ctx, cartKey(session), c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *CartStore) RemoveLine(ctx context.Context, session string, ticketTypeID uuid.UUID) error {
	return c.client.HDel(ctx, cartKey(session), ticketTypeID.String()).Err()
}

func (c *CartStore) Lines(ctx context.Context, session string) ([]domain.CartLine, error) {
	fields, err := c.client.HGetAll(ctx, cartKey(session)).Result()
	if err != nil {
		return nil, err
	}
	lines := make([]domain.CartLine, 0, len(fields))
	for field, value := range fields {
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil || qty <= 0 {
			continue
		}
		lines = append(lines, domain.CartLine{TicketTypeID: id, Quantity: qty})
	}
	return lines, nil
}

func (c *CartStore) Clear(ctx context.Context, session string) error {
	return c.client.Del(ctx, cartKey(session)).Err()
}
