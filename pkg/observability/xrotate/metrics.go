package xrotate

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RollingFile 的指标名，Meter scope 为 "xrotate"。
// 所有指标都带 xrotate.dir 属性（日志目录的绝对路径）。
const (
	MetricLinesWritten = "xrotate.lines.written"
	MetricBytesWritten = "xrotate.bytes.written"
	MetricRotations    = "xrotate.rotations"
	MetricFilesPruned  = "xrotate.files.pruned"
	MetricWriteErrors  = "xrotate.write.errors"
)

const attrDir = "xrotate.dir"

// rollingMetrics RollingFile 指标。nil 接收者上的方法都是空操作。
type rollingMetrics struct {
	linesWritten metric.Int64Counter
	bytesWritten metric.Int64Counter
	rotations    metric.Int64Counter
	filesPruned  metric.Int64Counter
	writeErrors  metric.Int64Counter
	attrs        metric.MeasurementOption
}

// newRollingMetrics meterProvider 为 nil 时返回 nil（不采集指标）
func newRollingMetrics(meterProvider metric.MeterProvider, dir string) (*rollingMetrics, error) {
	if meterProvider == nil {
		return nil, nil
	}
	meter := meterProvider.Meter("xrotate")

	m := &rollingMetrics{
		attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String(attrDir, dir))),
	}
	var err error
	if m.linesWritten, err = meter.Int64Counter(MetricLinesWritten,
		metric.WithDescription("成功写入的日志行数"), metric.WithUnit("{line}")); err != nil {
		return nil, err
	}
	if m.bytesWritten, err = meter.Int64Counter(MetricBytesWritten,
		metric.WithDescription("写入日志文件的字节数"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.rotations, err = meter.Int64Counter(MetricRotations,
		metric.WithDescription("文件轮转次数"), metric.WithUnit("{rotation}")); err != nil {
		return nil, err
	}
	if m.filesPruned, err = meter.Int64Counter(MetricFilesPruned,
		metric.WithDescription("按保留策略删除的文件数"), metric.WithUnit("{file}")); err != nil {
		return nil, err
	}
	if m.writeErrors, err = meter.Int64Counter(MetricWriteErrors,
		metric.WithDescription("写入或轮转失败次数"), metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *rollingMetrics) recordWrite(n int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.linesWritten.Add(ctx, 1, m.attrs)
	m.bytesWritten.Add(ctx, int64(n), m.attrs)
}

func (m *rollingMetrics) recordRotation(pruned int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.rotations.Add(ctx, 1, m.attrs)
	if pruned > 0 {
		m.filesPruned.Add(ctx, int64(pruned), m.attrs)
	}
}

func (m *rollingMetrics) recordError() {
	if m == nil {
		return
	}
	m.writeErrors.Add(context.Background(), 1, m.attrs)
}
