package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"research-agent/agent"
	"research-agent/config"
	mcpserver "research-agent/mcp-server"
	_ "research-agent/shared"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("RESEARCH_CONFIG"))
	if err != nil {
		log.Error().Err(err).Msg("Load config failed")
		return
	}
	w := agent.NewWorkflow(cfg)
	defer w.Close()
	err = w.Init(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Init workflow failed")
		return
	}
	s, err := mcpserver.NewServer(w.Compiler())
	if err != nil {
		log.Error().Err(err).Msg("Create server failed")
		return
	}
	err = s.Run()
	if err != nil {
		log.Error().Err(err).Msg("Run server failed")
		return
	}
	log.Info().Msg("Run server success")
}
