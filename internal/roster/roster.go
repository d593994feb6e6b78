package roster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	// ErrNoFreeSlot is returned when every employee row already has a member assigned
	ErrNoFreeSlot = errors.New("no free slot in employee sheet")
	// ErrBadgeNotFound is returned when a badge number is absent from the master roster
	ErrBadgeNotFound = errors.New("badge number not found in master roster")
	// ErrMemberNotFound is returned when a member ID is absent from the employee sheet
	ErrMemberNotFound = errors.New("member not found in employee sheet")
	// ErrUnknownRank is returned when a rank has no configured roster range
	ErrUnknownRank = errors.New("unknown rank")
)

// DefaultRankRanges maps each rank to its badge column segment on the
// master roster sheet.
var DefaultRankRanges = map[string]string{
	"Field Commander":                          "D31:D33",
	"Field Deputy Commander":                   "D34:D37",
	"Special Agent in Charge (SAC)":            "D38:D41",
	"Assistant Special Agent in Charge (ASAC)": "D45:D54",
	"Supervisory Special Agent":                "D55:D64",
	"Lead Special Agent":                       "D65:D94",
	"Senior Special Agent":                     "D98:D129",
	"Special Agent":                            "D133:D151",
	"Agent":                                    "D152:D192",
	"Probationary Agent":                       "D196:D225",
	"Agent In Training":                        "D228:D229",
	"Reserves":                                 "D282:D291",
}

const (
	employeeFirstRow = 23
	masterAppendRow  = 234
	masterScanLimit  = 300
)

// Workbook edits the organisation roster spreadsheet. Employee rows
// start at row 23 with badge numbers pre-filled in column B; a row is
// free while its member column D is empty. The master roster keeps one
// badge number per member in column D, grouped into rank segments.
type Workbook struct {
	path          string
	employeeSheet string
	masterSheet   string
	rankRanges    map[string]string
	logger        *zap.Logger

	mu sync.Mutex
}

// NewWorkbook creates a roster workbook editor. A nil rankRanges falls
// back to DefaultRankRanges.
func NewWorkbook(path, employeeSheet, masterSheet string, rankRanges map[string]string, logger *zap.Logger) *Workbook {
	if rankRanges == nil {
		rankRanges = DefaultRankRanges
	}
	return &Workbook{
		path:          path,
		employeeSheet: employeeSheet,
		masterSheet:   masterSheet,
		rankRanges:    rankRanges,
		logger:        logger,
	}
}

// Ranks returns the configured rank names
func (w *Workbook) Ranks() []string {
	ranks := make([]string, 0, len(w.rankRanges))
	for rank := range w.rankRanges {
		ranks = append(ranks, rank)
	}
	return ranks
}

// OnboardResult describes where a new officer landed on the sheets
type OnboardResult struct {
	BadgeNumber string
	Prefix      string
}

// Onboard claims the first free employee row for the member and appends
// their badge number to the bottom of the master roster. The returned
// prefix is the rank label read from the master roster row the badge
// landed on.
func (w *Workbook) Onboard(name, memberID, timezone, date string) (*OnboardResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster workbook: %w", err)
	}
	defer f.Close()

	badge, row, err := w.firstFreeEmployeeRow(f)
	if err != nil {
		return nil, err
	}

	w.setCell(f, w.employeeSheet, fmt.Sprintf("C%d", row), name)
	w.setCell(f, w.employeeSheet, fmt.Sprintf("D%d", row), memberID)
	w.setCell(f, w.employeeSheet, fmt.Sprintf("E%d", row), timezone)
	w.setCell(f, w.employeeSheet, fmt.Sprintf("F%d", row), date)

	masterRow := masterAppendRow
	for ; masterRow <= masterScanLimit; masterRow++ {
		v, err := f.GetCellValue(w.masterSheet, fmt.Sprintf("D%d", masterRow))
		if err != nil {
			return nil, fmt.Errorf("failed to read master roster: %w", err)
		}
		if strings.TrimSpace(v) == "" {
			break
		}
	}
	w.setCell(f, w.masterSheet, fmt.Sprintf("D%d", masterRow), badge)

	prefix, err := f.GetCellValue(w.masterSheet, fmt.Sprintf("B%d", masterRow))
	if err != nil {
		return nil, fmt.Errorf("failed to read master roster prefix: %w", err)
	}

	if err := f.Save(); err != nil {
		return nil, fmt.Errorf("failed to save roster workbook: %w", err)
	}

	w.logger.Info("Officer onboarded to roster",
		zap.String("member_id", memberID),
		zap.String("badge_number", badge),
		zap.Int("employee_row", row))

	return &OnboardResult{BadgeNumber: badge, Prefix: strings.TrimSpace(prefix)}, nil
}

// MoveResult carries the nickname components read from the destination row
type MoveResult struct {
	Prefix string
	Name   string
}

// Move relocates a badge number to the segment of the given rank. The
// old cell is cleared and the badge lands in the first empty cell of
// the target segment, overflowing past its end when the segment is full.
func (w *Workbook) Move(badgeNumber, rank string) (*MoveResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rangeRef, ok := w.rankRanges[rank]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRank, rank)
	}
	startRow, endRow, err := parseColumnRange(rangeRef)
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster workbook: %w", err)
	}
	defer f.Close()

	currentRow := 0
	for row := 2; row <= masterScanLimit; row++ {
		v, err := f.GetCellValue(w.masterSheet, fmt.Sprintf("D%d", row))
		if err != nil {
			return nil, fmt.Errorf("failed to read master roster: %w", err)
		}
		if padBadge(v) == padBadge(badgeNumber) && strings.TrimSpace(v) != "" {
			currentRow = row
			break
		}
	}
	if currentRow == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadgeNotFound, badgeNumber)
	}

	w.setCell(f, w.masterSheet, fmt.Sprintf("D%d", currentRow), "")

	targetRow := 0
	for row := startRow; row <= endRow; row++ {
		v, err := f.GetCellValue(w.masterSheet, fmt.Sprintf("D%d", row))
		if err != nil {
			return nil, fmt.Errorf("failed to read master roster: %w", err)
		}
		if strings.TrimSpace(v) == "" {
			targetRow = row
			break
		}
	}
	if targetRow == 0 {
		targetRow = endRow + 1
	}
	w.setCell(f, w.masterSheet, fmt.Sprintf("D%d", targetRow), padBadge(badgeNumber))

	prefix, err := f.GetCellValue(w.masterSheet, fmt.Sprintf("B%d", targetRow))
	if err != nil {
		return nil, fmt.Errorf("failed to read master roster prefix: %w", err)
	}
	name, err := f.GetCellValue(w.masterSheet, fmt.Sprintf("C%d", targetRow))
	if err != nil {
		return nil, fmt.Errorf("failed to read master roster name: %w", err)
	}

	if err := f.Save(); err != nil {
		return nil, fmt.Errorf("failed to save roster workbook: %w", err)
	}

	w.logger.Info("Badge moved on master roster",
		zap.String("badge_number", badgeNumber),
		zap.String("rank", rank),
		zap.Int("from_row", currentRow),
		zap.Int("to_row", targetRow))

	return &MoveResult{
		Prefix: strings.TrimSpace(prefix),
		Name:   strings.TrimSpace(name),
	}, nil
}

// Remove clears the member's employee row, columns C through F. The
// badge number in column B stays so the slot can be reused. It returns
// the row that was cleared.
func (w *Workbook) Remove(memberID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open roster workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(w.employeeSheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read employee sheet: %w", err)
	}

	target := 0
	for i := employeeFirstRow - 1; i < len(rows); i++ {
		// GetRows is zero-based and starts at column A; column D is index 3.
		if len(rows[i]) > 3 && strings.TrimSpace(rows[i][3]) == memberID {
			target = i + 1
			break
		}
	}
	if target == 0 {
		return 0, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}

	for _, col := range []string{"C", "D", "E", "F"} {
		w.setCell(f, w.employeeSheet, fmt.Sprintf("%s%d", col, target), "")
	}

	if err := f.Save(); err != nil {
		return 0, fmt.Errorf("failed to save roster workbook: %w", err)
	}

	w.logger.Info("Officer removed from roster",
		zap.String("member_id", memberID),
		zap.Int("employee_row", target))

	return target, nil
}

// firstFreeEmployeeRow finds the first employee row whose member column
// is empty and returns its badge number and one-based row index.
func (w *Workbook) firstFreeEmployeeRow(f *excelize.File) (string, int, error) {
	rows, err := f.GetRows(w.employeeSheet)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read employee sheet: %w", err)
	}

	for i := employeeFirstRow - 1; i < len(rows); i++ {
		memberCell := ""
		if len(rows[i]) > 3 {
			memberCell = rows[i][3]
		}
		if strings.TrimSpace(memberCell) != "" {
			continue
		}

		badge := ""
		if len(rows[i]) > 1 {
			badge = strings.TrimSpace(rows[i][1])
		}
		if badge == "" {
			continue
		}
		return badge, i + 1, nil
	}

	return "", 0, ErrNoFreeSlot
}

func (w *Workbook) setCell(f *excelize.File, sheet, cell, value string) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

// padBadge normalizes badge numbers to five digits so numeric and
// text-formatted cells compare equal.
func padBadge(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) >= 5 {
		return s
	}
	return strings.Repeat("0", 5-len(s)) + s
}

// parseColumnRange splits a same-column A1 range like "D31:D33" into
// its start and end rows.
func parseColumnRange(ref string) (int, int, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range %q", ref)
	}
	start, err := strconv.Atoi(strings.TrimLeft(parts[0], "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: %w", ref, err)
	}
	end, err := strconv.Atoi(strings.TrimLeft(parts[1], "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: %w", ref, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("invalid range %q", ref)
	}
	return start, end, nil
}
