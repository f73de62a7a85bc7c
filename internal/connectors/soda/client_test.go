package soda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// newTestClient builds a client against a test server with fast retries.
func newTestClient(t *testing.T, endpoint string, mutate ...func(*domain.SourceConfig)) *Client {
	t.Helper()

	cfg := domain.SourceConfig{
		Endpoint:  endpoint,
		Auth:      domain.AuthSchemeAppToken,
		AccessKey: "test-key",
		PageSize:  2,
		RateLimit: 10000, // effectively unthrottled
	}
	for _, m := range mutate {
		m(&cfg)
	}

	retry := domain.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	client, err := NewClient(cfg, retry)
	require.NoError(t, err)
	return client
}

// drain collects all records and the terminal error from a fetch.
func drain(ctx context.Context, client *Client) ([]domain.Record, error) {
	records, errs := client.Fetch(ctx)
	var got []domain.Record
	for rec := range records {
		got = append(got, rec)
	}
	return got, <-errs
}

// pagedHandler serves n records with offset pagination and a count
// aggregation endpoint.
func pagedHandler(n int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("$select") == "count(*)" {
			fmt.Fprintf(w, `[{"count":"%d"}]`, n)
			return
		}

		offset, _ := strconv.Atoi(q.Get("$offset"))
		limit, _ := strconv.Atoi(q.Get("$limit"))
		if limit <= 0 {
			limit = domain.DefaultPageSize
		}

		var page []map[string]any
		for i := offset; i < n && i < offset+limit; i++ {
			page = append(page, map[string]any{"camis": strconv.Itoa(i), "seq": i})
		}
		if page == nil {
			page = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(page)
	}
}

func TestClient_Count(t *testing.T) {
	t.Run("reads the count aggregation", func(t *testing.T) {
		srv := httptest.NewServer(pagedHandler(65201))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		n, err := client.Count(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(65201), n)
	})

	t.Run("accepts numeric counts", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"count": 42}]`)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		n, err := client.Count(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
	})

	t.Run("falls back to the total count header", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("$select") != "" {
				http.Error(w, "no aggregations here", http.StatusBadRequest)
				return
			}
			w.Header().Set(HeaderTotalCount, "321")
			fmt.Fprint(w, `[{"camis":"0"}]`)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		n, err := client.Count(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(321), n)
	})

	t.Run("does not mask auth failures with the fallback", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"bad token"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		_, err := client.Count(context.Background())

		require.Error(t, err)
		assert.True(t, IsUnauthorized(err))
	})
}

func TestClient_Fetch_OffsetPagination(t *testing.T) {
	var requests int32
	inner := pagedHandler(5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		inner(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got, err := drain(context.Background(), client)

	require.NoError(t, err)
	require.Len(t, got, 5)
	// Records arrive in pagination order.
	for i, rec := range got {
		assert.Equal(t, strconv.Itoa(i), rec["camis"])
	}
	// 5 records at page size 2: pages of 2, 2, 1.
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestClient_Fetch_EmptySource(t *testing.T) {
	srv := httptest.NewServer(pagedHandler(0))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got, err := drain(context.Background(), client)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_Fetch_CursorPagination(t *testing.T) {
	t.Run("follows next links until absent", func(t *testing.T) {
		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("page") {
			case "2":
				w.Header().Set("Link", fmt.Sprintf(`<%s?page=3>; rel="next"`, srv.URL))
				fmt.Fprint(w, `[{"camis":"2"},{"camis":"3"}]`)
			case "3":
				fmt.Fprint(w, `[{"camis":"4"}]`)
			default:
				w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, srv.URL))
				fmt.Fprint(w, `[{"camis":"0"},{"camis":"1"}]`)
			}
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, func(cfg *domain.SourceConfig) {
			cfg.Pagination = domain.PageModeCursor
		})
		got, err := drain(context.Background(), client)

		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, "4", got[4]["camis"])
	})

	t.Run("rejects a stalled cursor", func(t *testing.T) {
		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Always points back at the first page URL.
			w.Header().Set("Link", fmt.Sprintf(`<%s/?%s>; rel="next"`, srv.URL, r.URL.RawQuery))
			fmt.Fprint(w, `[{"camis":"0"},{"camis":"1"}]`)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/", func(cfg *domain.SourceConfig) {
			cfg.Pagination = domain.PageModeCursor
		})
		_, err := drain(context.Background(), client)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCursorStalled)
	})
}

func TestClient_Fetch_RetriesTransient(t *testing.T) {
	var requests int32
	inner := pagedHandler(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		inner(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got, err := drain(context.Background(), client)

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestClient_Fetch_RetriesExhausted(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := drain(context.Background(), client)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestClient_Fetch_AuthFailureIsFatal(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, `{"message":"invalid app token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := drain(context.Background(), client)

	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	// Never retried.
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestClient_Fetch_RateLimitHonorsRetryAfter(t *testing.T) {
	var requests int32
	inner := pagedHandler(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set(HeaderRetryAfter, "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		inner(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got, err := drain(context.Background(), client)

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestClient_Fetch_PreservesAwkwardText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$offset") != "0" && r.URL.Query().Get("$offset") != "" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, "[{\"dba\":\"CAFÉ\\nSECOND LINE\"}]")
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got, err := drain(context.Background(), client)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CAFÉ\nSECOND LINE", got[0]["dba"])
}

func TestClient_Fetch_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(pagedHandler(10000))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(t, srv.URL)

	records, errs := client.Fetch(ctx)
	// Take one record, then walk away.
	<-records
	cancel()
	for range records {
	}
	err := <-errs
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestClient_SendsAppToken(t *testing.T) {
	var gotToken atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get(HeaderAppToken))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := drain(context.Background(), client)

	require.NoError(t, err)
	assert.Equal(t, "test-key", gotToken.Load())
}

func TestClient_SendsBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(cfg *domain.SourceConfig) {
		cfg.Auth = domain.AuthSchemeBearer
	})
	_, err := drain(context.Background(), client)

	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth.Load())
}

func TestClient_Validate(t *testing.T) {
	t.Run("accepts a healthy endpoint", func(t *testing.T) {
		srv := httptest.NewServer(pagedHandler(3))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		assert.NoError(t, client.Validate(context.Background()))
	})

	t.Run("maps rejected credentials to the domain error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		err := client.Validate(context.Background())

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	})

	t.Run("rejects endpoints that do not return arrays", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"not":"an array"}`)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		assert.Error(t, client.Validate(context.Background()))
	})
}

func TestNewClient_BearerRequiresKey(t *testing.T) {
	cfg := domain.SourceConfig{
		Endpoint: "https://example.test/resource.json",
		Auth:     domain.AuthSchemeBearer,
	}

	_, err := NewClient(cfg, domain.RetryPolicy{})
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestNewClient_ResolvesAccessKeyReference(t *testing.T) {
	t.Setenv("SIPHON_TEST_APP_TOKEN", "resolved-key")

	var gotToken atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get(HeaderAppToken))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(cfg *domain.SourceConfig) {
		cfg.AccessKey = "env:SIPHON_TEST_APP_TOKEN"
	})
	_, err := drain(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "resolved-key", gotToken.Load())

	_, err = NewClient(domain.SourceConfig{
		Endpoint:  srv.URL,
		AccessKey: "env:SIPHON_TEST_UNSET",
	}, domain.RetryPolicy{})
	assert.ErrorIs(t, err, domain.ErrCredentialUnresolved)
}
