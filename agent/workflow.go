package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"research-agent/config"
	mcpclient "research-agent/mcp-client"
	"research-agent/service"
	"research-agent/shared"
)

// Workflow wires configured oracles, specialists and MCP servers into a Compiler.
type Workflow struct {
	cfg         *config.Config
	mcpclient   *mcpclient.ClientMgr
	tools       *service.ToolDispatcher
	specialists *service.SpecialistDispatcher
	compiler    *service.Compiler
	transcript  io.Writer

	openaiClients map[string]*openai.Client
	geminiClients map[string]*genai.Client
}

func NewWorkflow(cfg *config.Config) *Workflow {
	return &Workflow{
		cfg:           cfg,
		mcpclient:     mcpclient.NewClientMgr(),
		tools:         service.NewToolDispatcher(),
		specialists:   service.NewSpecialistDispatcher(),
		openaiClients: map[string]*openai.Client{},
		geminiClients: map[string]*genai.Client{},
	}
}

// WithTranscript records every specialist conversation to w.
func (w *Workflow) WithTranscript(wr io.Writer) *Workflow {
	w.transcript = wr
	return w
}

func (w *Workflow) Close() error {
	err := w.mcpclient.Close()
	if err != nil {
		return err
	}
	return nil
}

func (w *Workflow) Init(ctx context.Context) error {
	shared.SetLevel(w.cfg.Log.Level)

	for _, srv := range w.cfg.MCPServers {
		err := w.mcpclient.NewMCPClient(ctx, srv.Name, srv.Command, srv.Env)
		if err != nil {
			return fmt.Errorf("start mcp server %s: %w", srv.Name, err)
		}
	}
	if len(w.cfg.MCPServers) > 0 {
		endpoints, err := w.mcpclient.LoadAllTools(ctx)
		if err != nil {
			log.Error().Err(err).Msg("load all mcp tools failed")
			return err
		}
		if err := w.tools.RegisterToolEndpoint(endpoints...); err != nil {
			return err
		}
		w.tools.DebugTools()
	}

	channel, err := w.oracleChannel(ctx)
	if err != nil {
		return err
	}
	for _, sc := range w.cfg.Specialists {
		specialist, err := w.newSpecialist(ctx, sc)
		if err != nil {
			return fmt.Errorf("specialist %s: %w", sc.Agent, err)
		}
		if err := w.specialists.RegisterSpecialist(service.SpecialistEndPoint{Agent: sc.Agent, Specialist: specialist}); err != nil {
			return err
		}
		log.Info().Str("agent", sc.Agent).Str("provider", sc.Model.Provider).Msg("register specialist success")
	}

	w.compiler, err = service.NewCompiler(channel, w.specialists, w.cfg.CompilerOptions()...)
	return err
}

func (w *Workflow) Compiler() *service.Compiler {
	return w.compiler
}

func (w *Workflow) Research(ctx context.Context, query string, priorContext string) (*service.ExecutionReport, error) {
	if w.compiler == nil {
		return nil, errors.New("workflow not initialized")
	}
	return w.compiler.Research(ctx, query, priorContext)
}

// oracleChannel builds the primary and secondary oracles. A channel that
// cannot be built is skipped as long as the other one works.
func (w *Workflow) oracleChannel(ctx context.Context) (service.OracleChannel, error) {
	var channel service.OracleChannel
	var errList []error
	if m := w.cfg.Oracle.Primary; m.Enabled() {
		o, err := w.newOracle(ctx, m)
		if err != nil {
			errList = append(errList, fmt.Errorf("primary oracle: %w", err))
		}
		channel.Primary = o
	}
	if m := w.cfg.Oracle.Secondary; m.Enabled() {
		o, err := w.newOracle(ctx, m)
		if err != nil {
			errList = append(errList, fmt.Errorf("secondary oracle: %w", err))
		}
		channel.Secondary = o
	}
	if !channel.Configured() {
		return channel, errors.Join(append(errList, service.ErrNoOracle)...)
	}
	for _, err := range errList {
		log.Warn().Err(err).Msg("oracle channel disabled")
	}
	return channel, nil
}

// newOracle returns a nil interface, not a typed nil, on error.
func (w *Workflow) newOracle(ctx context.Context, m config.ModelConfig) (service.Oracle, error) {
	switch m.Provider {
	case config.ProviderOpenAI:
		client, err := w.openaiClient(m)
		if err != nil {
			return nil, err
		}
		return NewOpenAIOracle(client, m.Model, m.Temperature, m.JSONMode), nil
	case config.ProviderGemini:
		client, err := w.geminiClient(ctx, m)
		if err != nil {
			return nil, err
		}
		return NewGeminiOracle(client.Models, m.Model, m.Temperature, m.JSONMode), nil
	}
	return nil, fmt.Errorf("unknown provider %q", m.Provider)
}

func (w *Workflow) newSpecialist(ctx context.Context, sc config.SpecialistConfig) (service.Specialist, error) {
	instruct := sc.SystemPrompt
	if strings.TrimSpace(instruct) == "" {
		instruct = SpecialistInstruct(sc.Agent)
	}
	switch sc.Model.Provider {
	case config.ProviderOpenAI:
		client, err := w.openaiClient(sc.Model)
		if err != nil {
			return nil, err
		}
		var tools *service.ToolDispatcher
		if len(sc.Tools) > 0 {
			tools, err = w.tools.Subset(sc.Tools...)
			if err != nil {
				return nil, err
			}
		}
		return NewChatSpecialist(client, sc.Model.Model, instruct, tools).
			WithTemperature(sc.Model.Temperature).
			WithMaxTurns(sc.MaxTurns).
			WithTranscript(w.transcript), nil
	case config.ProviderGemini:
		client, err := w.geminiClient(ctx, sc.Model)
		if err != nil {
			return nil, err
		}
		return NewGeminiSpecialist(client.Models, sc.Model.Model, instruct, sc.Model.Temperature), nil
	case config.ProviderMCP:
		return mcpclient.NewToolSpecialist(w.mcpclient, sc.MCPServer, sc.MCPTool), nil
	}
	return nil, fmt.Errorf("unknown provider %q", sc.Model.Provider)
}

func (w *Workflow) openaiClient(m config.ModelConfig) (*openai.Client, error) {
	key := m.APIKeyEnv + "|" + m.BaseURL
	if c, ok := w.openaiClients[key]; ok {
		return c, nil
	}
	apiKey := os.Getenv(m.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("api key %s not set", m.APIKeyEnv)
	}
	cfg := openai.DefaultConfig(apiKey)
	if m.BaseURL != "" {
		cfg.BaseURL = m.BaseURL
	}
	c := openai.NewClientWithConfig(cfg)
	w.openaiClients[key] = c
	log.Info().Str("base_url", cfg.BaseURL).Msg("create openai client success")
	return c, nil
}

func (w *Workflow) geminiClient(ctx context.Context, m config.ModelConfig) (*genai.Client, error) {
	if c, ok := w.geminiClients[m.APIKeyEnv]; ok {
		return c, nil
	}
	apiKey := os.Getenv(m.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("api key %s not set", m.APIKeyEnv)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	w.geminiClients[m.APIKeyEnv] = c
	log.Info().Msg("create gemini client success")
	return c, nil
}

// Interactive answers one query per input line, carrying the previous answer
// as prior context for the next query.
func (w *Workflow) Interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	prior := ""
	for {
		fmt.Fprint(out, "Enter query: ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input != "" {
			log.Info().Msg("research start running")
			report, rErr := w.Research(ctx, input, prior)
			switch {
			case rErr != nil:
				fmt.Fprintf(out, "research failed: %v\n", rErr)
			default:
				fmt.Fprintf(out, "%s\n", report.Answer)
				prior = report.Answer
			}
			log.Info().Msg("research finish running")
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
