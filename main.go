package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"research-agent/agent"
	"research-agent/config"
	mcpserver "research-agent/mcp-server"
	_ "research-agent/shared"
)

var (
	configPath     string
	transcriptPath string
	priorContext   string
	proposalPath   string
	serveAddr      string
)

var rootCmd = &cobra.Command{
	Use:          "research-agent",
	Short:        "Multi-agent financial research assistant",
	SilenceUsage: true,
}

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Plan and run a research query; without a query, read queries from stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResearch,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compile and run a task proposal read from a file",
	RunE:  runProposal,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research tools over MCP SSE",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&transcriptPath, "transcript", "", "append specialist conversations to this file")
	researchCmd.Flags().StringVar(&priorContext, "prior", "", "prior conversation context")
	runCmd.Flags().StringVarP(&proposalPath, "file", "f", "", "proposal file, - for stdin")
	_ = runCmd.MarkFlagRequired("file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(researchCmd, runCmd, serveCmd)
}

func newWorkflow(ctx context.Context) (*agent.Workflow, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	w := agent.NewWorkflow(cfg)
	cleanup := func() {
		if err := w.Close(); err != nil {
			log.Error().Err(err).Msg("close workflow failed")
		}
	}
	if transcriptPath != "" {
		f, err := os.OpenFile(transcriptPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		w.WithTranscript(f)
		closeWorkflow := cleanup
		cleanup = func() {
			closeWorkflow()
			f.Close()
		}
	}
	if err := w.Init(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return w, cleanup, nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	w, cleanup, err := newWorkflow(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) == 0 {
		return w.Interactive(cmd.Context(), os.Stdin, os.Stdout)
	}
	report, err := w.Research(cmd.Context(), args[0], priorContext)
	if report != nil {
		printReport(report)
	}
	return err
}

func runProposal(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if proposalPath == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(proposalPath)
	}
	if err != nil {
		return err
	}
	w, cleanup, err := newWorkflow(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	report, err := w.Compiler().CompileAndRun(cmd.Context(), string(data))
	if report != nil {
		printReport(report)
	}
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	w, cleanup, err := newWorkflow(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	s, err := mcpserver.NewServer(w.Compiler())
	if err != nil {
		return err
	}
	return s.ServeSSE(cmd.Context(), serveAddr)
}

func printReport(report any) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("encode report failed")
		return
	}
	fmt.Println(string(data))
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("research-agent failed")
		os.Exit(1)
	}
}
