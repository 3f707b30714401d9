package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/auth"
	"taskboard/board"
	"taskboard/gateway"
	"taskboard/tokenstore"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	redirectURI := os.Getenv("REDIRECT_URI")
	if clientID == "" || clientSecret == "" || redirectURI == "" {
		log.Fatal("missing Google OAuth config")
	}

	store := openTokenStore()

	logger := log.New()

	var opts []auth.Option
	if os.Getenv("SKIP_ID_TOKEN_VERIFY") != "1" {
		jwks, err := keyfunc.Get(auth.GoogleJWKSURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		opts = append(opts, auth.WithVerifier(auth.NewVerifier(jwks, clientID, "")))
	}
	manager := auth.NewManager(auth.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
	}, store, logger, opts...)

	var gwOpts []gateway.Option
	if base := os.Getenv("TASKS_API_BASE"); base != "" {
		gwOpts = append(gwOpts, gateway.WithBaseURL(base))
	}
	gw := gateway.New(manager, logger, gwOpts...)

	ttl := time.Duration(0)
	if v := os.Getenv("NOTIFICATION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid NOTIFICATION_TTL: %v", err)
		}
		ttl = d
	}
	notes := board.NewCenter(ttl)

	hub := api.NewHub(logger)
	b := board.New(gw, notes, logger, board.WithChangeListener(hub.BroadcastSnapshot))
	defer b.Close()

	if manager.RestoreFromStorage(context.Background()) {
		go func() {
			if err := b.LoadAll(context.Background()); err != nil {
				logger.WithError(err).Error("initial board load")
			}
		}()
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, b, manager, notes, hub, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// openTokenStore selects the durable credential backend: redis when a
// connection string is configured, an embedded badger database otherwise.
func openTokenStore() auth.TokenStore {
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		return tokenstore.NewRedis(redis.NewClient(redisOpts))
	}

	path := os.Getenv("TOKEN_DB_PATH")
	if path == "" {
		path = "taskboard-tokens"
	}
	db, err := tokenstore.OpenBadger(path)
	if err != nil {
		log.Fatalf("token store: %v", err)
	}
	return db
}
