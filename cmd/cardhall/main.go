// cmd/cardhall/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/cardhall/cardhall-go/internal/httpapi"
	"github.com/cardhall/cardhall-go/internal/identity"
	"github.com/cardhall/cardhall-go/internal/invite"
	"github.com/cardhall/cardhall-go/internal/predict"
	"github.com/cardhall/cardhall-go/internal/session"
	"github.com/cardhall/cardhall-go/internal/transport"
)

func main() {
	var (
		create  = flag.Bool("create", false, "create a new room instead of joining")
		code    = flag.String("code", "", "room code to join")
		name    = flag.String("name", "", "display name (defaults to the stored one)")
		qrPath  = flag.String("qr", "", "write a join QR code PNG to this path after create")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	apiURL := getEnv("CARDHALL_API_URL", "http://localhost:8080")
	wsURL := getEnv("CARDHALL_WS_URL", "ws://localhost:8080/rooms/ws")
	webURL := getEnv("CARDHALL_WEB_URL", apiURL)

	profilePath, err := identity.DefaultProfilePath()
	if err != nil {
		logger.WithError(err).Fatal("resolve profile path")
	}
	profile, err := identity.NewFileStorage(profilePath)
	if err != nil {
		logger.WithError(err).Fatal("open profile store")
	}
	ids := identity.NewStore(identity.NewMemoryStorage(), profile, logger)

	api := httpapi.NewClient(apiURL, logger)
	ctx := context.Background()
	if !api.Probe(ctx) {
		logger.Fatal("platform is not reachable, refusing to start")
	}

	stored := ids.Read()
	userName := *name
	if userName == "" {
		userName = stored.UserName
	}
	if userName == "" {
		logger.Fatal("no display name stored; pass -name")
	}

	var res httpapi.JoinResult
	switch {
	case *create:
		res, err = api.CreateRoom(ctx, userName)
	case *code != "":
		res, err = api.JoinRoom(ctx, *code, userName, stored.UserID)
	default:
		logger.Fatal("pass -create or -code <roomCode>")
	}
	if err != nil {
		if errors.Is(err, httpapi.ErrCannotRejoin) {
			logger.Fatal("that room's game is in progress; try again once it pauses or ends")
		}
		logger.WithError(err).Fatal("room request failed")
	}

	ids.Write(identity.Identity{
		RoomID:   res.RoomID.String(),
		UserID:   res.UserID.String(),
		UserName: userName,
	})
	ids.WriteToken(res.Token)
	logger.WithFields(logrus.Fields{"room": res.RoomID, "code": res.RoomCode}).Info("joined room")

	if *create && *qrPath != "" {
		png, err := invite.QRCodePNG(webURL, res.RoomCode, 256)
		if err != nil {
			logger.WithError(err).Warn("could not render join QR code")
		} else if err := os.WriteFile(*qrPath, png, 0o644); err != nil {
			logger.WithError(err).Warn("could not write join QR code")
		} else {
			logger.WithField("path", *qrPath).Info("join QR code written")
		}
	}

	mgr := transport.NewManager(transport.Config{URL: wsURL}, logger)
	ctrl := session.NewController(mgr, ids, predict.NewEngine(logger), logger)

	ctrl.OnNotice(func(n session.Notice) {
		logger.WithField("kind", n.Kind).Info(n.Message)
	})
	ctrl.OnRender(func() {
		if game, ok := ctrl.GameState(); ok {
			logger.WithFields(logrus.Fields{
				"phase":   ctrl.Phase(),
				"turn":    game.CurrentPlayerID,
				"trick":   len(game.Trick),
				"conn":    ctrl.ConnectionState(),
				"offline": len(ctrl.Disconnected()),
			}).Debug("state changed")
		}
	})
	evicted := make(chan struct{})
	ctrl.OnEvicted(func(reason string) {
		logger.WithField("reason", reason).Warn("removed from the room")
		close(evicted)
	})

	if err := ctrl.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("connect failed")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
		ctrl.Leave()
	case <-evicted:
	}
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
