package llm

// Request shape for models/{model}:generateContent.
type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMimeType   string        `json:"responseMimeType,omitempty"`
	ResponseSchema     *geminiSchema `json:"responseSchema,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	Temperature        *float64      `json:"temperature,omitempty"`
}

// geminiSchema is the OpenAPI subset accepted as responseSchema.
type geminiSchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]*geminiSchema `json:"properties,omitempty"`
	Items       *geminiSchema            `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	// int64 fields travel as strings in the REST encoding
	MinItems int64 `json:"minItems,omitempty,string"`
	MaxItems int64 `json:"maxItems,omitempty,string"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

func schemaString() *geminiSchema { return &geminiSchema{Type: "STRING"} }

func schemaNumber() *geminiSchema { return &geminiSchema{Type: "NUMBER"} }

// adviceSchema mirrors DesignAdvice; every field is required.
func adviceSchema() *geminiSchema {
	return &geminiSchema{
		Type: "OBJECT",
		Properties: map[string]*geminiSchema{
			"critique":    schemaString(),
			"suggestions": {Type: "ARRAY", Items: schemaString()},
			"colorPalette": {
				Type: "ARRAY",
				Items: &geminiSchema{
					Type: "OBJECT",
					Properties: map[string]*geminiSchema{
						"name": schemaString(),
						"hex":  {Type: "STRING", Description: "Hex color code like #AABBCC"},
					},
					Required: []string{"name", "hex"},
				},
			},
			"furnitureRecommendations": {Type: "ARRAY", Items: schemaString()},
		},
		Required: []string{"critique", "suggestions", "colorPalette", "furnitureRecommendations"},
	}
}

// lookSchema mirrors LookDraft; box_2d is exactly four numbers.
func lookSchema() *geminiSchema {
	return &geminiSchema{
		Type: "OBJECT",
		Properties: map[string]*geminiSchema{
			"title":       schemaString(),
			"style":       schemaString(),
			"description": schemaString(),
			"products": {
				Type: "ARRAY",
				Items: &geminiSchema{
					Type: "OBJECT",
					Properties: map[string]*geminiSchema{
						"name":     schemaString(),
						"price":    schemaNumber(),
						"category": schemaString(),
						"query":    schemaString(),
						"box_2d": {
							Type:        "ARRAY",
							Description: "[ymin, xmin, ymax, xmax] normalized to 0-1000",
							Items:       schemaNumber(),
							MinItems:    4,
							MaxItems:    4,
						},
					},
					Required: []string{"name", "price", "category", "query", "box_2d"},
				},
			},
		},
		Required: []string{"title", "style", "description", "products"},
	}
}
