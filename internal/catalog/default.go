package catalog

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ID шагов встроенного каталога.
const (
	StepDocumentIngestion = "document_ingestion"
	StepSemanticChunking  = "semantic_chunking"
	StepVectorEmbedding   = "vector_embedding"
	StepVectorIndexing    = "vector_indexing"
	StepCustomerNeeds     = "customer_needs"
	StepGapAnalysis       = "gap_analysis"
	StepModuleMatching    = "module_matching"
	StepReportGeneration  = "report_generation"
)

// defaultSteps — pipeline анализа RFP-документов.
var defaultSteps = []domain.StepDescriptor{
	{
		ID:              StepDocumentIngestion,
		Name:            "Document Ingestion",
		Description:     "Parse uploaded PDF, DOCX and TXT documents and extract pages and tables",
		NominalDuration: 4 * time.Second,
		Details: []domain.MetricDef{
			{Name: "extractedPages", Total: 45},
			{Name: "extractedTables", Total: 12},
		},
	},
	{
		ID:              StepSemanticChunking,
		Name:            "Semantic Chunking",
		Description:     "Split extracted text into overlapping semantic chunks",
		NominalDuration: 3 * time.Second,
		Details: []domain.MetricDef{
			{Name: "chunks", Total: 320},
		},
	},
	{
		ID:              StepVectorEmbedding,
		Name:            "Vector Embedding",
		Description:     "Embed chunks with the sentence embedding model",
		NominalDuration: 5 * time.Second,
		Details: []domain.MetricDef{
			{Name: "embeddings", Total: 320},
		},
	},
	{
		ID:              StepVectorIndexing,
		Name:            "Vector Indexing",
		Description:     "Insert embeddings into the similarity search index",
		NominalDuration: 2 * time.Second,
		Details: []domain.MetricDef{
			{Name: "indexedVectors", Total: 320},
		},
	},
	{
		ID:              StepCustomerNeeds,
		Name:            "Customer Needs Analysis",
		Description:     "Extract explicit and implicit customer requirements",
		NominalDuration: 5 * time.Second,
		Details: []domain.MetricDef{
			{Name: "requirements", Total: 28},
		},
	},
	{
		ID:              StepGapAnalysis,
		Name:            "Gap Analysis",
		Description:     "Compare requirements against company capabilities",
		NominalDuration: 4 * time.Second,
		Details: []domain.MetricDef{
			{Name: "gapsIdentified", Total: 14},
		},
	},
	{
		ID:              StepModuleMatching,
		Name:            "Module Matching",
		Description:     "Match requirements to product modules",
		NominalDuration: 3 * time.Second,
		Details: []domain.MetricDef{
			{Name: "modulesMatched", Total: 9},
		},
	},
	{
		ID:              StepReportGeneration,
		Name:            "Report Generation",
		Description:     "Assemble the strategic analysis report",
		NominalDuration: 4 * time.Second,
		Details: []domain.MetricDef{
			{Name: "sections", Total: 12},
			{Name: "pages", Total: 24},
		},
	},
}

// DefaultProjections — таблица проекций для встроенного каталога.
func DefaultProjections() Projections {
	return Projections{
		StepDocumentIngestion: LinearProjection,
		StepSemanticChunking:  LinearProjection,
		StepVectorEmbedding:   LinearProjection,
		StepVectorIndexing:    LinearProjection,
		StepCustomerNeeds:     LinearProjection,
		StepGapAnalysis:       LinearProjection,
		StepModuleMatching:    LinearProjection,
		StepReportGeneration:  UnitProjection("sections"),
	}
}

// Default возвращает встроенный каталог.
func Default() *Catalog {
	c, err := New(defaultSteps, DefaultProjections())
	if err != nil {
		// встроенный каталог валиден всегда
		panic(err)
	}
	return c
}
