package producer

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/domain/notebook"
	"github.com/Acteus/Base-ML-Platform/internal/ports"
)

// Service implements ports.RequestProducer by returning a catalogue of demo
// analysis scripts bound to a small sample table.
type Service struct {
	mu       sync.Mutex
	requests []execution.Request
	index    int
}

var _ ports.RequestProducer = (*Service)(nil)

// SampleDataset returns the demo table: flower measurements with a species label.
func SampleDataset() *execution.Dataset {
	return &execution.Dataset{
		Columns: []string{"sepal_length", "sepal_width", "petal_length", "petal_width", "species"},
		Rows: [][]any{
			{5.1, 3.5, 1.4, 0.2, "setosa"},
			{4.9, 3.0, 1.4, 0.2, "setosa"},
			{4.7, 3.2, 1.3, 0.2, "setosa"},
			{5.0, 3.6, 1.4, 0.2, "setosa"},
			{7.0, 3.2, 4.7, 1.4, "versicolor"},
			{6.4, 3.2, 4.5, 1.5, "versicolor"},
			{6.9, 3.1, 4.9, 1.5, "versicolor"},
			{5.5, 2.3, 4.0, 1.3, "versicolor"},
			{6.3, 3.3, 6.0, 2.5, "virginica"},
			{5.8, 2.7, 5.1, 1.9, "virginica"},
			{7.1, 3.0, 5.9, 2.1, "virginica"},
			{6.5, 3.0, 5.8, 2.2, "virginica"},
		},
	}
}

const summaryScript = `df_shape = df.shape
means = df.select_dtypes("number").mean().round(3).to_dict()
print("rows:", df_shape[0], "columns:", df_shape[1])
result = means
`

const clusteringScript = `from sklearn.cluster import KMeans

n_clusters = 3
max_iter = 300
random_state = 42

features = df[["petal_length", "petal_width"]]
model = KMeans(n_clusters=n_clusters, max_iter=max_iter, random_state=random_state, n_init=10)
labels = model.fit_predict(features)

plt.figure()
plt.scatter(features["petal_length"], features["petal_width"], c=labels)
plt.title("petal clusters")
result = model.inertia_
`

const regressionScript = `from sklearn.linear_model import Ridge
from sklearn.model_selection import train_test_split

test_size = 0.25
alpha = 1.0
random_state = 7

X = df[["sepal_length", "sepal_width", "petal_length"]]
y = df["petal_width"]
X_train, X_test, y_train, y_test = train_test_split(X, y, test_size=test_size, random_state=random_state)
model = Ridge(alpha=alpha).fit(X_train, y_train)
output = round(model.score(X_test, y_test), 4)
print("r2:", output)
`

const failingScript = `ratio = 0.5
print("checking ratio")
if ratio < 1:
    raise ValueError("ratio must be at least 1")
`

//go:embed notebooks/outliers.ipynb
var outliersNotebook []byte

// NotebookRequest builds a request from the code cells start..end of an
// .ipynb document.
func NotebookRequest(id string, data []byte, start, end int, dataset *execution.Dataset) (execution.Request, error) {
	nb, err := notebook.Parse(data)
	if err != nil {
		return execution.Request{}, err
	}
	source := nb.CellRange(start, end, true)
	if source == "" {
		return execution.Request{}, fmt.Errorf("notebook has no code in cells [%d, %d]", start, end)
	}
	summary := nb.Summary()
	return execution.Request{ID: id, Source: source, Dataset: dataset, Notebook: &summary}, nil
}

// NewService builds a new producer service with the default catalogue.
func NewService() *Service {
	dataset := SampleDataset()
	svc := &Service{
		requests: []execution.Request{
			{ID: "summary", Source: summaryScript, Dataset: dataset},
			{ID: "clustering", Source: clusteringScript, Dataset: dataset},
			{
				ID:         "regression-tuned",
				Source:     regressionScript,
				Dataset:    dataset,
				Parameters: map[string]float64{"alpha": 0.5, "test_size": 0.3},
			},
			{ID: "failing", Source: failingScript},
		},
	}

	// The export cell writes a file, so the demo stops before it.
	req, err := NotebookRequest("notebook-outliers", outliersNotebook, 0, 2, dataset)
	if err != nil {
		panic(fmt.Sprintf("embedded notebook: %v", err))
	}
	req.Parameters = map[string]float64{"threshold": 1.0}
	svc.requests = append(svc.requests, req)
	return svc
}

// NextRequest returns the next catalogue entry, or io.EOF once exhausted.
func (s *Service) NextRequest(ctx context.Context) (execution.Request, error) {
	select {
	case <-ctx.Done():
		return execution.Request{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.requests) {
		return execution.Request{}, io.EOF
	}

	req := s.requests[s.index]
	s.index++

	return req, nil
}

// AddRequest allows extending the producer catalogue at runtime.
func (s *Service) AddRequest(req execution.Request) {
	if req.ID == "" {
		req.ID = time.Now().UTC().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
}
