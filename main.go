package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tlsclient/client"
	"tlsclient/config"
	"tlsclient/logging"
)

const version = "0.1.0"

func main() {
	config.ParseArgs()
	if config.CliArgs.Version {
		fmt.Println(version)
		return
	}
	if config.CliArgs.Debug {
		logging.InitLogger(logrus.DebugLevel)
	} else {
		logging.InitLogger(logrus.InfoLevel)
	}
	log := logging.GetLogger()

	cfg, err := config.LoadConfig(config.CliArgs.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if config.CliArgs.URL == "" {
		log.Fatalln("No -url given")
	}

	c := client.New(*cfg)
	log.Infof("Negotiated %s role for %s:%d", c.Role(), cfg.Host, cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Ready(ctx); err != nil {
		log.Fatalf("Control channel never came up: %v", err)
	}

	resp, err := c.Do(ctx, config.CliArgs.URL, client.Options{}, config.CliArgs.Method)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	log.Infof("Status: %d", resp.Status)
	out, err := json.MarshalIndent(resp.Body, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render body: %v", err)
	}
	fmt.Println(string(out))

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := c.Close(closeCtx); err != nil {
		log.Warnf("Shutdown did not finish cleanly: %v", err)
	}
}
