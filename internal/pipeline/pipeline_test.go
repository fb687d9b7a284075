package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/alert"
	"github.com/telhawk-systems/flowhawk/internal/classifier"
	"github.com/telhawk-systems/flowhawk/internal/convert"
	"github.com/telhawk-systems/flowhawk/internal/dataset"
	"github.com/telhawk-systems/flowhawk/internal/dlq"
	"github.com/telhawk-systems/flowhawk/internal/features"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/pipeline"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// durationModel flags flows longer than one second as DoS.
type durationModel struct{}

func (durationModel) NumClasses() int { return 2 }

func (durationModel) PredictProba(x []float64) ([]float64, error) {
	if x[0] > 1 {
		return []float64{0.1, 0.9}, nil
	}
	return []float64{0.95, 0.05}, nil
}

type brokenModel struct{}

func (brokenModel) NumClasses() int { return 2 }

func (brokenModel) PredictProba([]float64) ([]float64, error) {
	return nil, errors.New("boom")
}

func newPipeline(t *testing.T, m classifier.Model, names []string) *pipeline.Pipeline {
	t.Helper()
	adapter, err := classifier.New(m, []string{"BENIGN", "DoS"}, names)
	require.NoError(t, err)
	p, err := pipeline.New(adapter, alert.NewAssembler(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return p
}

func reader(t *testing.T, data string) *tabular.Reader {
	t.Helper()
	r, err := tabular.NewReader(strings.NewReader(data))
	require.NoError(t, err)
	return r
}

const connLog = "#fields\tts\tuid\tid.orig_h\tid.orig_p\tid.resp_h\tid.resp_p\tproto\tservice\tduration\torig_bytes\tresp_bytes\tconn_state\n" +
	"1499090158.000000\tCabc\t10.0.0.1\t51000\t10.0.0.2\t80\ttcp\thttp\t2.5\t120\t0\tS0\n" +
	"1499090159.000000\tCdef\t10.0.0.3\t53000\t10.0.0.4\t53\tudp\tdns\t0.01\t40\t80\tSF\n"

const flowExport = "Flow ID,Source IP,Source Port,Destination IP,Destination Port,Protocol,Timestamp,Flow Duration,Total Fwd Packets,Total Backward Packets,Total Length of Fwd Packets,Total Length of Bwd Packets,Label\n" +
	"f1,192.168.10.5,51000,192.168.10.50,80,6,7/3/2017 13:55:58,2500000,3,0,120,0,DoS Hulk\n" +
	"f2,192.168.10.5,51001,192.168.10.50,80,6,not a time,10,1,1,10,10,BENIGN\n" +
	"f3,192.168.10.6,51002,192.168.10.50,443,6,7/3/2017 13:56:00,1000,1,1,10,10,BENIGN\n"

func TestNew_RequiresAdapter(t *testing.T) {
	_, err := pipeline.New(nil, nil)
	assert.ErrorIs(t, err, classifier.ErrClassifierUnavailable)
}

func TestProcess_ConnectionLog(t *testing.T) {
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)
	r := reader(t, connLog)

	kind, err := p.Detector().Detect(r.Header())
	require.NoError(t, err)
	require.Equal(t, dataset.KindConnectionLog, kind)

	row, err := r.Next()
	require.NoError(t, err)

	res, err := p.Process(context.Background(), kind, row)
	require.NoError(t, err)

	assert.Equal(t, "DoS", res.Prediction.ClassName)
	assert.Equal(t, features.LeanFeatureNames, res.Vector.Names())
	require.NotNil(t, res.Record)
	assert.Equal(t, "Cabc", res.Record.UID)

	a := res.Alert
	assert.Equal(t, "FLOW-Cabc", a.RuleID)
	assert.Equal(t, models.AttackDoS, a.AttackType)
	assert.Equal(t, models.ProtocolTCP, a.Protocol)
	assert.Equal(t, time.Unix(1499090158, 0).UTC(), a.Timestamp)
	assert.Equal(t, models.SeverityCritical, a.Severity)
	assert.Equal(t, 2.5, a.Meta[models.MetaFeatures].(map[string]float64)["duration"])
}

func TestProcess_FlowExportIsConvertedFirst(t *testing.T) {
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames).ForSource("cicids2017", "tuesday.csv")
	r := reader(t, flowExport)

	kind, err := p.Detector().Detect(r.Header())
	require.NoError(t, err)
	require.Equal(t, dataset.KindRawFlowExport, kind)

	row, err := r.Next()
	require.NoError(t, err)
	res, err := p.Process(context.Background(), kind, row)
	require.NoError(t, err)

	require.NotNil(t, res.Record)
	assert.Equal(t, "f1", res.Record.FlowID)
	assert.Equal(t, "tuesday.csv", res.Record.SourceFile)
	assert.Equal(t, "cicids2017", res.Record.Dataset)
	assert.Equal(t, "FLOW-f1", res.Alert.RuleID)
	assert.Equal(t, "DoS Hulk", res.Alert.Meta[models.MetaOriginalLabel])

	// The row handed to the assembler is the converted connection-log row.
	connRow := res.Alert.Meta[models.MetaFeatureRow].(map[string]string)
	assert.Equal(t, "S0", connRow["conn_state"])

	row, err = r.Next()
	require.NoError(t, err)
	_, err = p.Process(context.Background(), kind, row)
	var skipped *convert.SkippedRowError
	require.True(t, errors.As(err, &skipped))
	assert.Equal(t, convert.ReasonTimestamp, skipped.Reason)
}

func TestProcess_FeatureTable(t *testing.T) {
	names := []string{"Flow Duration", "Destination Port"}
	p := newPipeline(t, durationModel{}, names)
	data := "Flow Duration,Destination Port,Flow ID,Source IP,Source Port,Destination IP,Protocol,Timestamp,Label\n" +
		"5,80,fid-1,172.16.0.1,40000,192.168.10.50,6,7/7/2017 3:30:00 PM,DDoS\n"
	r := reader(t, data)

	kind, err := p.Detector().Detect(r.Header())
	require.NoError(t, err)
	require.Equal(t, dataset.KindFeatureTable, kind)

	row, err := r.Next()
	require.NoError(t, err)
	res, err := p.Process(context.Background(), kind, row)
	require.NoError(t, err)

	assert.Nil(t, res.Record)
	assert.Equal(t, []float64{5, 80}, res.Vector.Values())
	assert.Equal(t, "FEATURE-fid-1", res.Alert.RuleID)
	assert.Equal(t, "FeatureDataset DoS", res.Alert.RuleName)
	assert.Equal(t, 40000, res.Alert.SrcPort)
	assert.Equal(t, "DDoS", res.Alert.Meta[models.MetaOriginalLabel])
}

func TestProcess_UnknownKind(t *testing.T) {
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)
	_, err := p.Process(context.Background(), dataset.Kind("parquet"), tabular.RawRow{})
	assert.Error(t, err)
}

func TestRun_CountsSkipsAndDeadLetters(t *testing.T) {
	q, err := dlq.NewQueue(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames).ForSource("", "tuesday.csv").WithDLQ(q)

	var got []models.Alert
	st, err := p.Run(context.Background(), dataset.KindRawFlowExport, pipeline.FromReader(reader(t, flowExport)), func(res pipeline.Result) error {
		got = append(got, res.Alert)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, st.Rows)
	assert.Equal(t, 2, st.Alerts)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, map[string]int{convert.ReasonTimestamp: 1}, st.Reasons)
	require.Len(t, got, 2)
	assert.Equal(t, models.AttackBenign, got[1].AttackType)

	entries, err := q.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tuesday.csv", entries[0].Source)
	assert.Equal(t, "f2", entries[0].Row["Flow ID"])
}

func TestRun_Stop(t *testing.T) {
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)
	calls := 0
	st, err := p.Run(context.Background(), dataset.KindConnectionLog, pipeline.FromReader(reader(t, connLog)), func(pipeline.Result) error {
		calls++
		return pipeline.ErrStop
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, st.Alerts)
}

func TestRun_ModelErrorStops(t *testing.T) {
	p := newPipeline(t, brokenModel{}, features.LeanFeatureNames)
	_, err := p.Run(context.Background(), dataset.KindConnectionLog, pipeline.FromReader(reader(t, connLog)), func(pipeline.Result) error {
		return nil
	})
	assert.ErrorContains(t, err, "boom")
}

func TestRun_Cancelled(t *testing.T) {
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, dataset.KindConnectionLog, pipeline.FromReader(reader(t, connLog)), func(pipeline.Result) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CountsShortRows(t *testing.T) {
	data := connLog +
		"1499090160.000000\tCshort\t10.0.0.5\n" +
		"1499090161.000000\tCghi\t10.0.0.5\t53001\t10.0.0.4\t53\tudp\tdns\t0.02\t40\t80\tSF\n"
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)

	st, err := p.Run(context.Background(), dataset.KindConnectionLog, pipeline.FromReader(reader(t, data)), func(pipeline.Result) error {
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 4, st.Rows)
	assert.Equal(t, 3, st.Alerts)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, map[string]int{convert.ReasonShort: 1}, st.Reasons)
}

func TestRun_ShortAndUnconvertibleRows(t *testing.T) {
	data := flowExport + "f4,192.168.10.7,51003\n"
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)

	st, err := p.Run(context.Background(), dataset.KindRawFlowExport, pipeline.FromReader(reader(t, data)), func(pipeline.Result) error {
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 4, st.Rows)
	assert.Equal(t, 2, st.Alerts)
	assert.Equal(t, 2, st.Skipped)
	assert.Equal(t, map[string]int{convert.ReasonTimestamp: 1, convert.ReasonShort: 1}, st.Reasons)
}

func TestRun_DetectsKindFromFirstRow(t *testing.T) {
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)

	var uids []string
	st, err := p.Run(context.Background(), "", pipeline.FromReader(reader(t, connLog)), func(res pipeline.Result) error {
		uids = append(uids, res.Record.UID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Alerts)
	assert.Equal(t, []string{"Cabc", "Cdef"}, uids)
}

func TestRun_DetectRejectsUnknownHeader(t *testing.T) {
	p := newPipeline(t, durationModel{}, features.LeanFeatureNames)

	_, err := p.Run(context.Background(), "", pipeline.FromReader(reader(t, "alpha,beta\n1,2\n")), func(pipeline.Result) error {
		return nil
	})
	var malformed *dataset.MalformedSourceError
	assert.True(t, errors.As(err, &malformed))
}
