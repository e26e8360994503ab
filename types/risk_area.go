package types

import (
	"strings"
	"time"
)

// Category is the closed set of hazard categories a report can carry.
type Category string

const (
	CategoryInfraestrutura Category = "infraestrutura"
	CategorySeguranca      Category = "seguranca"
	CategorySaude          Category = "saude"
)

var categoryAliases = map[string]Category{
	"infraestrutura": CategoryInfraestrutura,
	"seguranca":      CategorySeguranca,
	"segurança":      CategorySeguranca,
	"saude":          CategorySaude,
	"saúde":          CategorySaude,
}

// ParseCategory normalizes a client supplied category. Unknown values
// report false.
func ParseCategory(raw string) (Category, bool) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(raw))]
	return c, ok
}

// RiskArea is a reported hazard location.
// Optional fields are nil when the client omitted them.
type RiskArea struct {
	// ID is the unique identifier of the report (UUID).
	ID string `json:"id" db:"id"`

	// Imagem is the link to the evidence image returned by the upload gateway.
	Imagem *string `json:"imagem" db:"imagem"`

	// Chuva describes the rainfall impact on the hazard.
	Chuva *string `json:"chuva" db:"chuva"`

	// Temperatura describes the temperature impact on the hazard.
	Temperatura *string `json:"temperatura" db:"temperatura"`

	// Tempo describes how long the area has been at risk.
	Tempo *string `json:"tempo" db:"tempo"`

	// EnderecoFormatado is the human readable address of the report.
	EnderecoFormatado *string `json:"enderecoFormatado" db:"endereco_formatado"`

	// Lat and Lng are the report coordinates. Either may be absent.
	Lat *float64 `json:"lat" db:"lat"`
	Lng *float64 `json:"log" db:"log"`

	// Categoria is one of the known hazard categories.
	Categoria *Category `json:"categoria" db:"categoria"`

	// Respostas holds the questionnaire answers as an opaque document.
	Respostas Document `json:"respostas" db:"respostas"`

	// Classificacao holds classification metadata as an opaque document.
	Classificacao Document `json:"classificacao" db:"classificacao"`

	// UserID identifies the reporting user. Nil for anonymous reports.
	UserID *string `json:"user_id" db:"user_id"`

	// CreatedAt is the timestamp when the report was stored.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
