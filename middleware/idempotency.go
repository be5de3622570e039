package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/acbikash13/NepalPermit/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"

	// How long the in-progress marker lives if the handler never finishes.
	provisionalLockTTL = 2 * time.Minute
	redisOpTimeout     = 2 * time.Second
)

var validIdempotencyKey = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

type idempEntry struct {
	InProgress  bool      `json:"in_progress"`
	Code        int       `json:"code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	BodySHA256  string    `json:"body_sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// bodyRecorder tees the response so it can be stored for replay.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a request is retried with the same
// Idempotency-Key. Requests without the header pass straight through. A key reused
// with a different body, or while the first request is still running, gets 409.
// Server errors are not stored so the client may retry them. The body is read
// through a maxBodyBytes cap before hashing; zero disables the cap.
func Idempotency(rdb redis.UniversalClient, ttl time.Duration, maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(IdempotencyKeyHeader)
		if idemKey == "" {
			c.Next()
			return
		}
		if !validIdempotencyKey.MatchString(idemKey) {
			AbortWithError(c, http.StatusBadRequest, "Invalid Idempotency-Key")
			return
		}

		var body []byte
		if c.Request.Body != nil {
			if maxBodyBytes > 0 {
				c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
			}
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					AbortWithError(c, http.StatusRequestEntityTooLarge, "Request body too large")
					return
				}
				AbortWithError(c, http.StatusBadRequest, "Failed to read request body")
				return
			}
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		bhash := bodyHash(body)

		key := buildIdempotencyKey(c.Request.Method, c.FullPath(), idemKey)
		ctx, cancel := context.WithTimeout(c.Request.Context(), redisOpTimeout)
		defer cancel()

		ok, err := provisionalSet(ctx, rdb, key, idempEntry{InProgress: true, BodySHA256: bhash, CreatedAt: time.Now().UTC()})
		if err != nil {
			logger.Error(c.Request.Context(), "idempotency store unavailable", "error", err)
			AbortWithError(c, http.StatusServiceUnavailable, "Idempotency store unavailable")
			return
		}
		if !ok {
			cur, err := loadEntry(ctx, rdb, key)
			if err != nil {
				logger.Warn(c.Request.Context(), "failed to load idempotency entry", "key", key, "error", err)
			}
			if cur.BodySHA256 != "" && cur.BodySHA256 != bhash {
				AbortWithError(c, http.StatusConflict, "Idempotency-Key reused with a different request")
				return
			}
			if !cur.InProgress && cur.Code != 0 {
				c.Header(replayedHeader, "true")
				c.Data(cur.Code, cur.ContentType, cur.Body)
				c.Abort()
				return
			}
			AbortWithError(c, http.StatusConflict, "Request is already in progress")
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), redisOpTimeout)
		defer saveCancel()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			if err := rdb.Del(saveCtx, key).Err(); err != nil {
				logger.Warn(c.Request.Context(), "failed to release idempotency key", "error", err)
			}
			return
		}

		final := idempEntry{
			Code:        status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.Bytes(),
			BodySHA256:  bhash,
			CreatedAt:   time.Now().UTC(),
		}
		if err := saveFinal(saveCtx, rdb, key, final, ttl); err != nil {
			logger.Warn(c.Request.Context(), "failed to store idempotent response", "error", err)
		}
	}
}

func bodyHash(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func buildIdempotencyKey(method, route, key string) string {
	return "idem:" + method + ":" + route + ":" + key
}

func provisionalSet(ctx context.Context, rdb redis.UniversalClient, key string, entry idempEntry) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func loadEntry(ctx context.Context, rdb redis.UniversalClient, key string) (idempEntry, error) {
	var e idempEntry
	v, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return e, nil
		}
		return e, err
	}
	err = json.Unmarshal(v, &e)
	return e, err
}

func saveFinal(ctx context.Context, rdb redis.UniversalClient, key string, entry idempEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, payload, ttl).Err()
}
