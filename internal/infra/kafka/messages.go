package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/domain/notebook"
	"github.com/Acteus/Base-ML-Platform/internal/ports"
	"github.com/Acteus/Base-ML-Platform/internal/tuning"
)

const (
	messageTypeRun  = "run"
	messageTypeDone = "done"
)

type runEnvelope struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Source     string             `json:"source"`
	Dataset    *execution.Dataset `json:"dataset,omitempty"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
	Limits     *runLimits         `json:"limits,omitempty"`
	// Notebook is an .ipynb document whose code cells become the source.
	Notebook   json.RawMessage    `json:"notebook,omitempty"`
	Cells      *cellRange         `json:"cells,omitempty"`
}

// cellRange selects notebook cells by 0-based index, both ends inclusive.
type cellRange struct {
	Start int  `json:"start"`
	End   *int `json:"end,omitempty"`
}

type runLimits struct {
	TimeLimitMs      int64 `json:"time_limit_ms"`
	MemoryLimitBytes int64 `json:"memory_limit_bytes"`
}

type reportEnvelope struct {
	ID                 string                    `json:"id"`
	Source             string                    `json:"source,omitempty"`
	Success            bool                      `json:"success"`
	Output             string                    `json:"output"`
	Error              *errorEnvelope            `json:"error,omitempty"`
	Result             *execution.Value          `json:"result,omitempty"`
	Variables          []variableEnvelope        `json:"variables,omitempty"`
	Figures            []figureEnvelope          `json:"figures,omitempty"`
	Parameters         []parameterEnvelope       `json:"parameters,omitempty"`
	UnavailableHandles []string                  `json:"unavailable_handles,omitempty"`
	ExitCode           *int64                    `json:"exit_code,omitempty"`
	DurationMs         *int64                    `json:"duration_ms,omitempty"`
	Dataset            *execution.DatasetSummary `json:"dataset,omitempty"`
	Notebook           *notebook.Summary         `json:"notebook,omitempty"`
	Fault              string                    `json:"fault,omitempty"`
	Timestamp          time.Time                 `json:"timestamp"`
}

type errorEnvelope struct {
	Kind      execution.ErrorKind `json:"kind"`
	Label     string              `json:"label"`
	Type      string              `json:"type,omitempty"`
	Message   string              `json:"message"`
	Traceback string              `json:"traceback,omitempty"`
	Line      int                 `json:"line,omitempty"`
}

type variableEnvelope struct {
	Name string          `json:"name"`
	Type string          `json:"type"`
	Repr string          `json:"repr"`
	Data json.RawMessage `json:"data,omitempty"`
}

type figureEnvelope struct {
	Number int    `json:"number"`
	Label  string `json:"label,omitempty"`
	PNG    []byte `json:"png"`
}

type parameterEnvelope struct {
	Name     string      `json:"name"`
	Kind     tuning.Kind `json:"kind"`
	Category string      `json:"category"`
	Value    float64     `json:"value"`
	Line     int         `json:"line"`
	Text     string      `json:"text"`
	Min      float64     `json:"min"`
	Max      float64     `json:"max"`
	Step     float64     `json:"step"`
}

// decodeRunMessage turns a broker message into a request. A done message
// yields io.EOF; anything malformed is wrapped in ports.ErrInvalidRequest.
func decodeRunMessage(msg kafkago.Message) (execution.Request, error) {
	var envelope runEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return execution.Request{}, fmt.Errorf("%w: decode message at offset %d: %w", ports.ErrInvalidRequest, msg.Offset, err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeRun
	}

	switch msgType {
	case messageTypeRun:
		return envelope.toRequest(msg)
	case messageTypeDone:
		return execution.Request{}, io.EOF
	default:
		return execution.Request{}, fmt.Errorf("%w: unknown message type %q", ports.ErrInvalidRequest, msgType)
	}
}

func (e runEnvelope) toRequest(msg kafkago.Message) (execution.Request, error) {
	source, summary, err := e.script()
	if err != nil {
		return execution.Request{}, err
	}
	if err := e.Dataset.Validate(); err != nil {
		return execution.Request{}, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}

	requestID := e.ID
	if requestID == "" {
		requestID = string(msg.Key)
	}
	if requestID == "" {
		requestID = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	return execution.Request{
		ID:         requestID,
		Source:     source,
		Dataset:    e.Dataset,
		Limits:     e.toLimits(),
		Parameters: e.Parameters,
		Notebook:   summary,
	}, nil
}

// script returns the source to run: either the message source, or the
// selected code cells of its notebook joined with cell separators.
func (e runEnvelope) script() (string, *notebook.Summary, error) {
	if len(e.Notebook) == 0 {
		if e.Cells != nil {
			return "", nil, fmt.Errorf("%w: cell range without a notebook", ports.ErrInvalidRequest)
		}
		if e.Source == "" {
			return "", nil, fmt.Errorf("%w: run message missing source", ports.ErrInvalidRequest)
		}
		return e.Source, nil, nil
	}
	if e.Source != "" {
		return "", nil, fmt.Errorf("%w: run message carries both source and notebook", ports.ErrInvalidRequest)
	}

	nb, err := notebook.Parse(e.Notebook)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}

	start, end := 0, len(nb.Cells)-1
	if e.Cells != nil {
		start = e.Cells.Start
		if e.Cells.End != nil {
			end = *e.Cells.End
		}
		if start < 0 || end < start {
			return "", nil, fmt.Errorf("%w: invalid cell range [%d, %d]", ports.ErrInvalidRequest, start, end)
		}
	}

	source := nb.CellRange(start, end, true)
	if source == "" {
		return "", nil, fmt.Errorf("%w: notebook has no code in cells [%d, %d]", ports.ErrInvalidRequest, start, end)
	}
	summary := nb.Summary()
	return source, &summary, nil
}

func (e runEnvelope) toLimits() execution.RunLimits {
	if e.Limits == nil {
		return execution.RunLimits{}
	}

	var limits execution.RunLimits
	if e.Limits.TimeLimitMs > 0 {
		limits.TimeLimit = time.Duration(e.Limits.TimeLimitMs) * time.Millisecond
	}
	if e.Limits.MemoryLimitBytes > 0 {
		limits.MemoryLimitBytes = e.Limits.MemoryLimitBytes
	}
	return limits
}

func encodeRunReport(report execution.RunReport) ([]byte, error) {
	payload, err := json.Marshal(makeReportEnvelope(report, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return payload, nil
}

func makeReportEnvelope(report execution.RunReport, now time.Time) reportEnvelope {
	envelope := reportEnvelope{
		ID:        report.Request.ID,
		Timestamp: now,
	}
	if report.Source != report.Request.Source || report.Request.Notebook != nil {
		envelope.Source = report.Source
	}
	if report.Err != nil {
		envelope.Fault = report.Err.Error()
	}
	envelope.Dataset = report.Request.Dataset.Summary()
	envelope.Notebook = report.Request.Notebook

	for _, p := range report.Parameters {
		envelope.Parameters = append(envelope.Parameters, parameterEnvelope{
			Name:     p.Name,
			Kind:     p.Kind,
			Category: p.Category,
			Value:    p.RawValue,
			Line:     p.Line,
			Text:     p.Text,
			Min:      p.Min,
			Max:      p.Max,
			Step:     p.Step,
		})
	}

	result := report.Result
	if result == nil {
		return envelope
	}

	exit := result.ExitCode
	envelope.ExitCode = &exit
	dur := result.Duration.Milliseconds()
	envelope.DurationMs = &dur

	envelope.Success = result.Success
	envelope.Output = result.Output
	envelope.Result = result.ResultValue
	envelope.UnavailableHandles = result.UnavailableHandles

	if result.Err != nil {
		envelope.Error = &errorEnvelope{
			Kind:      result.Err.Kind,
			Label:     result.Err.Kind.Label(),
			Type:      result.Err.Type,
			Message:   result.Err.Message,
			Traceback: result.Err.Traceback,
			Line:      result.Err.Line,
		}
	}

	for _, v := range result.Variables {
		envelope.Variables = append(envelope.Variables, variableEnvelope{
			Name: v.Name,
			Type: v.Value.Type,
			Repr: v.Value.Repr,
			Data: v.Value.Data,
		})
	}
	for _, f := range result.Figures {
		envelope.Figures = append(envelope.Figures, figureEnvelope{Number: f.Number, Label: f.Label, PNG: f.PNG})
	}

	return envelope
}
