package badge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownType is returned for a badge type with no configured template
var ErrUnknownType = errors.New("unknown badge type")

// Badge types selectable by members
const (
	TypeHighCommand     = "hc"
	TypeLowCommand      = "lowcmd"
	TypePatrol          = "patrol"
	TypeSupervisor      = "supervisor"
	TypeTrialLowCommand = "triallowcmd"
)

// template holds the renderer parameters that vary per badge type
type template struct {
	base string
	seal string
}

var templates = map[string]template{
	TypeHighCommand:     {base: "gold", seal: "C125P"},
	TypeLowCommand:      {base: "gold", seal: "C125BKE"},
	TypePatrol:          {base: "silver", seal: "C125BKE"},
	TypeSupervisor:      {base: "gons", seal: "C125BKE"},
	TypeTrialLowCommand: {base: "song", seal: "C125BKE"},
}

const defaultRendererURL = "https://www.visualbadge.com/badge.aspx"

// Generator renders personalised badge images through an external
// badge rendering service and stages them on disk for upload.
type Generator struct {
	rendererURL string
	agencyLine  string
	outputDir   string
	client      *http.Client
	logger      *zap.Logger
}

// NewGenerator creates a badge generator. Empty rendererURL falls back
// to the default rendering service.
func NewGenerator(rendererURL, agencyLine, outputDir string, logger *zap.Logger) *Generator {
	if rendererURL == "" {
		rendererURL = defaultRendererURL
	}
	return &Generator{
		rendererURL: rendererURL,
		agencyLine:  agencyLine,
		outputDir:   outputDir,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Types returns the selectable badge types
func (g *Generator) Types() []string {
	return []string{TypeHighCommand, TypeLowCommand, TypePatrol, TypeSupervisor, TypeTrialLowCommand}
}

// BuildURL assembles the rendering service request for a badge
func (g *Generator) BuildURL(badgeType, rank, name, badgeNumber string) (string, error) {
	tpl, ok := templates[badgeType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, badgeType)
	}

	q := url.Values{}
	q.Set("badge", "S511")
	q.Set("base", tpl.base)
	q.Set("textfont", "BLOCK")
	q.Set("textcolor", "BLACK")
	q.Set("text1", rank)
	q.Set("text2", g.agencyLine)
	q.Set("text3", "")
	q.Set("text4", name)
	q.Set("text5", badgeNumber)
	q.Set("text6", "")
	q.Set("seal", tpl.seal)
	q.Set("textsep", "NONE")
	q.Set("bcolor", "")

	return g.rendererURL + "?" + q.Encode(), nil
}

// Generate fetches the rendered badge and writes it to the staging
// directory. The caller removes the file after sending it.
func (g *Generator) Generate(ctx context.Context, badgeType, rank, name, badgeNumber string) (string, error) {
	reqURL, err := g.BuildURL(badgeType, rank, name, badgeNumber)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build badge request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch badge image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("badge renderer returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create badge output dir: %w", err)
	}

	path := filepath.Join(g.outputDir, fmt.Sprintf("badge_%s.png", badgeNumber))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create badge file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write badge file: %w", err)
	}

	g.logger.Info("Badge image generated",
		zap.String("badge_number", badgeNumber),
		zap.String("type", badgeType),
		zap.String("path", path))

	return path, nil
}
