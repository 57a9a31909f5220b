package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

// ChatOracle talks to an OpenAI-compatible chat-completions endpoint and
// asks for strict-JSON coaching output.
type ChatOracle struct {
	endpoint string
	apiKey   string
	model    string
	http     *fasthttp.Client
	timeout  time.Duration
	logger   *zap.Logger
}

type OracleConfig struct {
	Endpoint       string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

func NewChatOracle(cfg OracleConfig, logger *zap.Logger) *ChatOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}
	return &ChatOracle{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http: &fasthttp.Client{
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
			MaxConnsPerHost: 16,
		},
		timeout: timeout,
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type oracleDrill struct {
	Objective   string   `json:"objective"`
	BestLineSAN []string `json:"best_line_san"`
	AltTrapsSAN []string `json:"alt_traps_san"`
}

type oraclePayload struct {
	Basic    string        `json:"basic"`
	Extended string        `json:"extended"`
	Tags     []string      `json:"tags"`
	Drills   []oracleDrill `json:"drills"`
}

func (o *ChatOracle) CoachMove(ctx context.Context, fb coachdto.MoveFeedback, level string) (Result, error) {
	structured := map[string]any{
		"san":           fb.SAN,
		"best_move_san": fb.BestMoveSAN,
		"cp_loss":       fb.CPLoss,
		"severity":      fb.Severity,
		"side":          fb.Side,
		"multipv":       fb.MultiPV,
	}
	data, err := json.Marshal(structured)
	if err != nil {
		return Result{}, fmt.Errorf("marshal move context: %w", err)
	}

	prompt := fmt.Sprintf(
		"You are a concise chess coach. Given a move and engine data, "+
			"return JSON with: basic (<=15 words), extended (<=100 words), "+
			"tags (array), and drills (array of {objective, best_line_san}). "+
			"Player level: %s. Ground advice in PV; do not contradict engine.\n\n"+
			"Data:\n%s\n\n"+
			"Return only a JSON object with keys: basic, extended, tags, drills.",
		level, data,
	)

	reqBody, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a concise chess coach that outputs strict JSON."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(o.endpoint + "/chat/completions")
	req.Header.SetContentType("application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	req.SetBody(reqBody)

	if err := o.http.DoDeadline(req, resp, o.computeDeadline(ctx)); err != nil {
		return Result{}, fmt.Errorf("oracle request failed: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return Result{}, fmt.Errorf("oracle api error: status=%d", status)
	}

	var chat chatResponse
	if err := json.Unmarshal(resp.Body(), &chat); err != nil {
		return Result{}, fmt.Errorf("decode oracle response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return Result{}, fmt.Errorf("oracle returned no choices")
	}

	payload, err := parseOracleContent(chat.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}

	drills := make([]coachdto.Drill, 0, len(payload.Drills))
	for i, d := range payload.Drills {
		if i >= 2 {
			break
		}
		objective := d.Objective
		if objective == "" {
			objective = "Find the best continuation"
		}
		drills = append(drills, coachdto.Drill{
			FEN:         fb.FENBefore,
			SideToMove:  fb.Side,
			Objective:   objective,
			BestLineSAN: d.BestLineSAN,
			AltTrapsSAN: d.AltTrapsSAN,
		})
	}

	return Result{
		Basic:    payload.Basic,
		Extended: payload.Extended,
		Tags:     payload.Tags,
		Drills:   drills,
		Source:   coachdto.CoachSourceOracle,
	}, nil
}

// parseOracleContent tolerates fenced code blocks around the JSON object.
func parseOracleContent(content string) (oraclePayload, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var payload oraclePayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return oraclePayload{}, fmt.Errorf("decode oracle payload: %w", err)
	}
	return payload, nil
}

func (o *ChatOracle) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(o.timeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(o.timeout)
}
