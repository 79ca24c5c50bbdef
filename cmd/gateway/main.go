package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alarm-gateway/internal/api"
	"alarm-gateway/internal/auth"
	"alarm-gateway/internal/channel"
	"alarm-gateway/internal/config"
	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/history"
	"alarm-gateway/internal/logging"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/timez"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zone := timez.Default
	loaded, err := config.Load(zone)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logPath := loaded.Logging.FilePath
	if logPath == "" {
		logPath = "alarm.log"
	}
	alarmLog, err := logging.Open(logPath, zone)
	if err != nil {
		log.Fatalf("Failed to open alarm log file: %v", err)
	}
	defer alarmLog.Close()

	historySink, err := history.Connect(ctx, loaded.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to history database: %v", err)
	}
	defer historySink.Close()

	hub := api.NewStatusHub()
	go hub.Pump()

	statusCb := func(msg gateway.SendStatusMessage) {
		alarmLog.LogStatus(msg.Code, msg)
		historySink.Record(msg)
		hub.Broadcast(msg)
	}
	exceptionCb := func(err error) {
		alarmLog.Errorf("connection manager fault: %v", err)
	}

	lookup, err := vendorLookup(loaded)
	if err != nil {
		log.Fatalf("Failed to configure rest vendor lookup: %v", err)
	}
	senderFactory := channel.NewSenderFactory(zone, lookup)

	mgr := gateway.NewGatewaysManager(statusCb, exceptionCb, senderFactory)
	mgr.ResetMessagesDB(loaded.Messages)
	if err := mgr.ResetLoginDB(loaded.Logins); err != nil {
		log.Fatalf("Failed to initialize connection managers: %v", err)
	}
	defer mgr.Shutdown()

	authSvc := auth.NewService(
		loaded.Auth.Username,
		loaded.Auth.PasswordHash,
		loaded.Auth.JWTSecret,
		time.Duration(loaded.Auth.JWTExpirationSeconds)*time.Second,
	)

	router := api.NewRouter(mgr, authSvc, hub)
	host := loaded.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := loaded.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Printf("Starting alarm gateway control plane on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down alarm gateway...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Alarm gateway exited")
}

// vendorLookup builds the REST channel's auxiliary label/unit/scenario/
// template lookup, pointed at the same vendor host the alarm POST targets.
// A gateway config with no rest login configured returns a nil lookup; the
// REST connection manager is simply absent in that case.
func vendorLookup(loaded *config.Loaded) (channel.VendorLookup, error) {
	l, ok := loaded.Logins.Search(payload.KindRest)
	if !ok {
		return nil, nil
	}
	return channel.NewHTTPVendorLookup(l.Credentials.Endpoint, l.Credentials.APIToken)
}
