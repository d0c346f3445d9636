package rank

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
)

// FileHostRanks serves page ranks from a tab-separated rank file with a
// header row and columns <reversed hostname, rescaled page rank>. The
// whole file is loaded once; lookups are in-memory.
type FileHostRanks struct {
	ranks map[string]float64
}

// NewFileHostRanks loads a rank file.
func NewFileHostRanks(path string) (*FileHostRanks, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.StorageError("opening host rank file", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = 2

	// Skip the header row.
	if _, err := reader.Read(); err != nil {
		return nil, apperrors.StorageError("reading host rank file header", err)
	}

	ranks := make(map[string]float64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.StorageError("reading host rank file", err)
		}

		rank, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, apperrors.StorageError("parsing host rank value", err)
		}
		ranks[record[0]] = rank
	}

	return &FileHostRanks{ranks: ranks}, nil
}

// PageRank returns the rank of a reversed hostname.
func (f *FileHostRanks) PageRank(ctx context.Context, host string) (float64, bool, error) {
	rank, ok := f.ranks[host]
	return rank, ok, nil
}

// RedisHostRanks serves page ranks from a redis hash, one hash per
// schema.org class. Used when the rank files are shared across workers.
type RedisHostRanks struct {
	client *redis.Client
	key    string
}

// NewRedisHostRanks connects to redis and verifies the connection.
func NewRedisHostRanks(url, schemaOrgClass string) (*RedisHostRanks, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.StorageError("parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.StorageError("connecting to redis", err)
	}

	return &RedisHostRanks{
		client: client,
		key:    "tablefill:pagerank:" + schemaOrgClass,
	}, nil
}

// PageRank looks the reversed hostname up in the class hash.
func (r *RedisHostRanks) PageRank(ctx context.Context, host string) (float64, bool, error) {
	value, err := r.client.HGet(ctx, r.key, host).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.StorageError("looking up host page rank", err)
	}

	rank, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, apperrors.StorageError("parsing host page rank", err)
	}

	return rank, true, nil
}

// Close releases the redis connection.
func (r *RedisHostRanks) Close() error {
	return r.client.Close()
}
