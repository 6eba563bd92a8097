package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
)

const (
	combinedPRFile       = "pr_tracking_combined.csv"
	combinedReviewerFile = "pr_tracking_reviewers_combined.csv"
)

// MergeResult summarizes one merge run.
type MergeResult struct {
	Repositories []string
	PRRows       int
	ReviewerRows int
	PROutput     string
	ReviewerOut  string
}

// Merger combines per-repository tracking CSVs into cross-repo files for
// pivot-table analysis. Files are discovered by the pr_tracking_*.csv naming
// convention; previously merged outputs are skipped.
type Merger struct {
	inputDir  string
	outputDir string
	logger    *zap.Logger
}

func NewMerger(inputDir, outputDir string, logger *zap.Logger) *Merger {
	if outputDir == "" {
		outputDir = inputDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{inputDir: inputDir, outputDir: outputDir, logger: logger}
}

// Merge discovers, combines, and writes the tracking CSVs. It fails when the
// input directory holds no tracking files at all; a missing category (PR or
// reviewer) is merely skipped.
func (m *Merger) Merge() (*MergeResult, error) {
	prFiles, reviewerFiles, err := m.discover()
	if err != nil {
		return nil, err
	}
	if len(prFiles) == 0 && len(reviewerFiles) == 0 {
		return nil, apperrors.NewNotFoundError("pr_tracking_*.csv files in " + m.inputDir)
	}

	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return nil, apperrors.NewInternalError("failed to create output directory", err)
	}

	result := &MergeResult{
		PROutput:    filepath.Join(m.outputDir, combinedPRFile),
		ReviewerOut: filepath.Join(m.outputDir, combinedReviewerFile),
	}

	repos := make(map[string]struct{})
	for _, f := range prFiles {
		repos[repoNameFromFile(f)] = struct{}{}
	}
	for _, f := range reviewerFiles {
		repos[repoNameFromFile(f)] = struct{}{}
	}
	result.Repositories = sortedKeys(repos)

	if len(prFiles) > 0 {
		n, err := m.mergeFiles(prFiles, result.PROutput)
		if err != nil {
			return nil, err
		}
		result.PRRows = n
	}
	if len(reviewerFiles) > 0 {
		n, err := m.mergeFiles(reviewerFiles, result.ReviewerOut)
		if err != nil {
			return nil, err
		}
		result.ReviewerRows = n
	}

	m.logger.Info("merged tracking reports",
		zap.Int("repositories", len(result.Repositories)),
		zap.Int("pr_rows", result.PRRows),
		zap.Int("reviewer_rows", result.ReviewerRows))
	return result, nil
}

func (m *Merger) discover() (prFiles, reviewerFiles []string, err error) {
	matches, err := filepath.Glob(filepath.Join(m.inputDir, "pr_tracking_*.csv"))
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to scan input directory", err)
	}
	sort.Strings(matches)
	for _, path := range matches {
		name := filepath.Base(path)
		switch {
		case name == combinedPRFile || name == combinedReviewerFile:
			continue
		case strings.Contains(name, "reviewers"):
			reviewerFiles = append(reviewerFiles, path)
		default:
			prFiles = append(prFiles, path)
		}
	}
	return prFiles, reviewerFiles, nil
}

// mergeFiles concatenates the data rows of every input under the first
// file's header, tagging each row with its source repository when the
// schema lacks a repository column.
func (m *Merger) mergeFiles(files []string, outputPath string) (int, error) {
	var header []string
	var rows [][]string
	repoCol := -1

	for _, path := range files {
		fileHeader, fileRows, err := readTrackingCSV(path)
		if err != nil {
			m.logger.Warn("skipping unreadable tracking file",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if len(fileHeader) == 0 {
			continue
		}
		if header == nil {
			header = fileHeader
			repoCol = indexOf(header, "repository")
			if repoCol < 0 {
				header = append(header, "repository")
			}
		}
		repo := repoNameFromFile(path)
		for _, row := range fileRows {
			if repoCol < 0 {
				row = append(row, repo)
			}
			rows = append(rows, row)
		}
	}
	if header == nil {
		return 0, apperrors.NewInternalError("no tracking files could be read", nil)
	}

	sortCol := indexOf(header, "repository")
	if sortCol >= 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i][sortCol] < rows[j][sortCol]
		})
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to create combined file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return 0, apperrors.NewInternalError("failed to write combined header", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return 0, apperrors.NewInternalError("failed to write combined rows", err)
	}
	return len(rows), nil
}

// readTrackingCSV parses a tracking file, skipping the comment block and
// blank separator lines ahead of the header.
func readTrackingCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var header []string
	var rows [][]string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if len(record) == 0 {
			continue
		}
		if len(record) == 1 && (record[0] == "" || strings.HasPrefix(record[0], "#")) {
			continue
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

// repoNameFromFile recovers the repository slug embedded in a tracking
// filename, e.g. pr_tracking_reviewers_myrepo.csv yields "myrepo".
func repoNameFromFile(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	name = strings.TrimPrefix(name, "pr_tracking_reviewers_")
	name = strings.TrimPrefix(name, "pr_tracking_")
	return name
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
