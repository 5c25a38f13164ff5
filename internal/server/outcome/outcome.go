// Package outcome turns an executor exit code and result artifact into a run status.
package outcome

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"taf/internal/server/model"
)

// OutputFile is the robot result file inside an artifact directory.
const OutputFile = "output.xml"

// ArtifactParseError means the artifact could not yield a failure count.
type ArtifactParseError struct {
	Path string
	Err  error
}

func (e *ArtifactParseError) Error() string {
	return fmt.Sprintf("parse artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactParseError) Unwrap() error {
	return e.Err
}

type Statistics struct {
	Pass int
	Fail int
	Skip int
}

type xmlStat struct {
	Pass *string `xml:"pass,attr"`
	Fail *string `xml:"fail,attr"`
	Skip *string `xml:"skip,attr"`
}

type xmlRobot struct {
	Total []xmlStat `xml:"statistics>total>stat"`
	Suite []xmlStat `xml:"statistics>suite>stat"`
}

// ParseArtifact reads the first total stat of an output.xml, or the first
// suite stat when no total is present.
func ParseArtifact(path string) (*Statistics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactParseError{Path: path, Err: err}
	}
	defer f.Close()

	var doc xmlRobot
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, &ArtifactParseError{Path: path, Err: err}
	}

	var stat xmlStat
	switch {
	case len(doc.Total) > 0:
		stat = doc.Total[0]
	case len(doc.Suite) > 0:
		stat = doc.Suite[0]
	default:
		return nil, &ArtifactParseError{Path: path, Err: fmt.Errorf("no statistics found")}
	}

	stats := &Statistics{}
	for _, c := range []struct {
		name string
		attr *string
		dst  *int
	}{
		{"pass", stat.Pass, &stats.Pass},
		{"fail", stat.Fail, &stats.Fail},
		{"skip", stat.Skip, &stats.Skip},
	} {
		if c.attr == nil {
			continue
		}
		n, err := strconv.Atoi(*c.attr)
		if err != nil {
			if c.name != "fail" {
				continue
			}
			return nil, &ArtifactParseError{Path: path, Err: fmt.Errorf("%s attribute %q: %w", c.name, *c.attr, err)}
		}
		*c.dst = n
	}
	return stats, nil
}

type Interpreter struct {
	artifactsRoot string
	logger        *zap.Logger
}

func NewInterpreter(artifactsRoot string, logger *zap.Logger) *Interpreter {
	return &Interpreter{artifactsRoot: artifactsRoot, logger: logger.Named("outcome")}
}

// Interpret prefers the artifact's failure count and falls back to the exit
// code: 0 finished, 1 failed, anything else error.
func (i *Interpreter) Interpret(exitCode int, artifactRef *string) model.RunStatus {
	if artifactRef != nil && *artifactRef != "" {
		stats, err := ParseArtifact(filepath.Join(i.artifactsRoot, *artifactRef, OutputFile))
		if err == nil {
			if stats.Fail == 0 {
				return model.StatusFinished
			}
			return model.StatusFailed
		}
		i.logger.Debug("artifact unusable, falling back to exit code",
			zap.String("artifact_ref", *artifactRef), zap.Int("exit_code", exitCode), zap.Error(err))
	}
	return FromExitCode(exitCode)
}

func FromExitCode(exitCode int) model.RunStatus {
	switch exitCode {
	case 0:
		return model.StatusFinished
	case 1:
		return model.StatusFailed
	default:
		return model.StatusError
	}
}
