package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/biorag-go/internal/rag"
)

// Test constants for model output parsing.

const (
	answerComplete = `
{
  "reporte": {
    "resumen": "La microgravedad acelera la pérdida de densidad ósea en ratones expuestos durante misiones prolongadas.",
    "hallazgos": [
      "Los ratones expuestos a microgravedad perdieron hasta un 20% de densidad ósea.",
      "La expresión de osteocalcina disminuyó durante el vuelo espacial."
    ]
  },
  "grafo": [
    {
      "palabra": "microgravedad",
      "articulos": [
        {"titulo": "bone-loss-iss.txt", "link": "https://pubmed.ncbi.nlm.nih.gov/12345"}
      ],
      "relaciones": ["densidad ósea", "osteocalcina"]
    }
  ]
}`
	answerFenced = "```json\n" + `{"reporte": {"resumen": "Resumen breve.", "hallazgos": []}, "grafo": []}` + "\n```"
	answerNoJSON = `This is not JSON`
)

func TestParseAnswerComplete(t *testing.T) {
	t.Parallel()

	answer, err := parseAnswer(answerComplete)
	if err != nil {
		t.Fatalf("parseAnswer() error = %v", err)
	}

	if !strings.Contains(answer.Reporte.Resumen, "microgravedad") {
		t.Errorf("parseAnswer() resumen = %q, want microgravedad mention", answer.Reporte.Resumen)
	}
	if len(answer.Reporte.Hallazgos) != 2 {
		t.Errorf("parseAnswer() hallazgos length = %v, want 2", len(answer.Reporte.Hallazgos))
	}
	if len(answer.Grafo) != 1 {
		t.Fatalf("parseAnswer() grafo length = %v, want 1", len(answer.Grafo))
	}

	node := answer.Grafo[0]
	if node.Palabra != "microgravedad" {
		t.Errorf("parseAnswer() palabra = %q, want 'microgravedad'", node.Palabra)
	}
	if len(node.Articulos) != 1 || node.Articulos[0].Link != "https://pubmed.ncbi.nlm.nih.gov/12345" {
		t.Errorf("parseAnswer() articulos = %v, want the pubmed link", node.Articulos)
	}
	if len(node.Relaciones) != 2 {
		t.Errorf("parseAnswer() relaciones length = %v, want 2", len(node.Relaciones))
	}
}

func TestParseAnswerStripsCodeFences(t *testing.T) {
	t.Parallel()

	answer, err := parseAnswer(answerFenced)
	if err != nil {
		t.Fatalf("parseAnswer() error = %v", err)
	}
	if answer.Reporte.Resumen != "Resumen breve." {
		t.Errorf("parseAnswer() resumen = %q, want 'Resumen breve.'", answer.Reporte.Resumen)
	}
	// An empty graph is a valid answer — not every question yields concepts.
	if len(answer.Grafo) != 0 {
		t.Errorf("parseAnswer() grafo length = %v, want 0", len(answer.Grafo))
	}
}

func TestParseAnswerNonJSON(t *testing.T) {
	t.Parallel()

	answer, err := parseAnswer(answerNoJSON)
	if err == nil {
		t.Fatal("parseAnswer() expected error, got nil")
	}
	if answer != nil {
		t.Errorf("parseAnswer() answer = %v, want nil", answer)
	}

	var sve *rag.SchemaViolationError
	if !errors.As(err, &sve) {
		t.Fatalf("parseAnswer() error type = %T, want *rag.SchemaViolationError", err)
	}
	if sve.RawOutput != answerNoJSON {
		t.Errorf("SchemaViolationError.RawOutput = %q, want the raw model output", sve.RawOutput)
	}
}

func TestParseAnswerRejectsInvalidShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty object", `{}`},
		{"blank resumen", `{"reporte": {"resumen": "   ", "hallazgos": []}, "grafo": []}`},
		{"reporte wrong type", `{"reporte": "texto plano", "grafo": []}`},
		{"node without palabra", `{"reporte": {"resumen": "ok", "hallazgos": []}, "grafo": [{"palabra": "", "articulos": [], "relaciones": []}]}`},
		{"grafo wrong type", `{"reporte": {"resumen": "ok", "hallazgos": []}, "grafo": "no es una lista"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseAnswer(tt.raw)
			if err == nil {
				t.Fatal("parseAnswer() expected error, got nil")
			}
			var sve *rag.SchemaViolationError
			if !errors.As(err, &sve) {
				t.Fatalf("parseAnswer() error type = %T, want *rag.SchemaViolationError", err)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a": 1}`, `{"a": 1}`},
		{"plain fences", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"json fences", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\": 1}\n```\n  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := stripCodeFences(tt.in); got != tt.want {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
