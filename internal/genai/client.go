package genai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/database"
)

// geminiClient implements the SQLGenerator interface using the Google Gemini API.
type geminiClient struct {
	client *genai.Client
	cfg    Config
	retry  RetryOptions
}

// SQLGenerator turns a natural-language question into a SQL query.
type SQLGenerator interface {
	// GenerateSQL returns a single executable query answering question.
	GenerateSQL(ctx context.Context, question, schemaContext string) (string, error)

	// IsAPIKeyValid checks if the configured API key is functional.
	IsAPIKeyValid(ctx context.Context) error

	// Close cleans up any resources used by the client.
	Close() error
}

// Config holds configuration for the GenAI client.
type Config struct {
	APIKey  string
	Model   string
	Dialect string // database dialect named in the prompt
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, cfg Config) (SQLGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cannot create Gemini client: API key is missing")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash-latest"
		log.Printf("INFO: Gemini model not specified, defaulting to %s", cfg.Model)
	}

	return &geminiClient{
		client: client,
		cfg:    cfg,
		retry:  DefaultRetryOptions,
	}, nil
}

// Close cleans up the underlying Gemini client.
func (c *geminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAPIKeyValid checks if the Gemini API key is valid by listing models.
func (c *geminiClient) IsAPIKeyValid(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("gemini client not initialized (likely missing API key)")
	}

	modelIterator := c.client.ListModels(ctx)
	_, err := modelIterator.Next() // Attempt to list one model
	if err != nil {
		if st, ok := status.FromError(err); ok {
			if st.Code() == codes.Unauthenticated || st.Code() == codes.PermissionDenied {
				return fmt.Errorf("invalid Gemini API key or insufficient permissions: %w", err)
			}
		}
		return fmt.Errorf("failed to verify Gemini API key by listing models: %w", err)
	}
	return nil
}

// GenerateSQL asks Gemini for a query answering question against the schema
// described by schemaContext.
func (c *geminiClient) GenerateSQL(ctx context.Context, question, schemaContext string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("gemini client not initialized")
	}
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	prompt := BuildSQLPrompt(c.cfg.Dialect, question, schemaContext)

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(1024)

	resp, err := withRetry(ctx, c.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text, err := getFirstTextPart(resp)
	if err != nil {
		return "", err
	}

	query := ExtractSQL(text)
	if query == "" {
		return "", fmt.Errorf("no SQL query found in Gemini response")
	}
	log.Printf("INFO: Generated SQL using model %s.", c.cfg.Model)
	return query, nil
}

// dialectNames maps config dialects onto the names used in the prompt.
var dialectNames = map[string]string{
	"postgres":          "PostgreSQL",
	"cloudsqlpostgres":  "PostgreSQL",
	"mysql":             "MySQL",
	"cloudsqlmysql":     "MySQL",
	"sqlserver":         "SQL Server",
	"cloudsqlsqlserver": "SQL Server",
}

// BuildSQLPrompt renders the generation prompt.
func BuildSQLPrompt(dialect, question, schemaContext string) string {
	engine, ok := dialectNames[dialect]
	if !ok {
		engine = "PostgreSQL"
	}

	return fmt.Sprintf(`
	You are a SQL query generator. Generate only the SQL query without any explanation.
	The query must be executable in %s.

	********** Database Schema **********
	%s
	********** End Database Schema **********

	**Important Rules:**
	1. ALWAYS prefix column names with their table name or alias (e.g., customer.customer_id, c.customer_id).
	2. When joining tables use meaningful aliases, qualify every column reference and use explicit JOIN syntax.
	3. In GROUP BY and ORDER BY use fully qualified column names.
	4. For complex queries, use CTEs (WITH clause) to improve readability.
	5. Handle NULL values with IS NULL or IS NOT NULL.
	6. Use DISTINCT when necessary to avoid duplicate rows.
	7. Write text literals exactly as the user wrote them.

	Output the query ONLY within <sql></sql> tags.

	Question: %s
	`, engine, schemaContext, question)
}

// ExtractSQL pulls the query out of a model reply, accepting <sql> tags or
// markdown fences.
func ExtractSQL(text string) string {
	if content, found := extractContentBetween(text, "<sql>", "</sql>"); found {
		text = content
	}
	text = strings.ReplaceAll(text, "```sql", "")
	text = strings.ReplaceAll(text, "```SQL", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// TableSchema is one table of the schema context.
type TableSchema struct {
	Name    string
	Columns []database.ColumnInfo
}

// FormatSchemaContext renders tables as "table(column type, ...)" lines.
func FormatSchemaContext(tables []TableSchema) string {
	var b strings.Builder
	for _, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, strings.TrimSpace(c.Name+" "+c.DataType))
		}
		fmt.Fprintf(&b, "%s(%s)\n", t.Name, strings.Join(cols, ", "))
	}
	return b.String()
}

// getFirstTextPart extracts the first text part from a Gemini response.
func getFirstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		safetyRatings := "none"
		if resp != nil && len(resp.Candidates) > 0 {
			finishReason = resp.Candidates[0].FinishReason.String()
			if resp.Candidates[0].SafetyRatings != nil {
				safetyRatings = fmt.Sprintf("%v", resp.Candidates[0].SafetyRatings)
			}
		}
		return "", fmt.Errorf("empty or incomplete response from Gemini API. FinishReason: %s, SafetyRatings: %s", finishReason, safetyRatings)
	}
	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response part type: %T", part)
	}
	return string(text), nil
}

// extractContentBetween extracts content between start and end tags from a string.
func extractContentBetween(text, startTag, endTag string) (string, bool) {
	startIndex := strings.Index(text, startTag)
	if startIndex == -1 {
		return "", false
	}
	startIndex += len(startTag)
	endIndex := strings.Index(text[startIndex:], endTag)
	if endIndex == -1 {
		return "", false
	}
	return strings.TrimSpace(text[startIndex : startIndex+endIndex]), true
}
