package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"

	"icephys/pkg/domain"
)

func encodeTrace(v []float64) ([]byte, error) {
	if v == nil {
		v = []float64{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode trace")
	}
	return b, nil
}

func decodeTrace(b []byte) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, errors.Wrap(err, "decode trace")
	}
	return v, nil
}

// rowExists reports whether any row matches the key predicate.
func (s *Store) rowExists(ctx context.Context, table, predicate string, args ...any) (bool, error) {
	query := s.q(fmt.Sprintf(`SELECT 1 FROM %s WHERE %s`, table, predicate))
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "existence check on %s", table)
	}
	return true, nil
}

// guardDuplicate rejects an insert whose key already holds a row. A race
// between the check and the insert still surfaces as the driver's constraint
// error, propagated unchanged.
func (s *Store) guardDuplicate(ctx context.Context, table, predicate string, key fmt.Stringer, args ...any) error {
	present, err := s.rowExists(ctx, table, predicate, args...)
	if err != nil {
		return err
	}
	if present {
		return errors.Mark(errors.Newf("%s already has a row for %s", table, key), domain.ErrDuplicateKey)
	}
	return nil
}

const (
	sessionPredicate = `subject_id = ? AND session_time = ?`
	cellPredicate    = `subject_id = ? AND session_time = ? AND cell_id = ?`
)

func sessionArgs(k domain.SessionKey) []any {
	return []any{k.SubjectID, encodeTime(k.SessionTime)}
}

func cellArgs(k domain.CellKey) []any {
	return []any{k.SubjectID, encodeTime(k.SessionTime), k.CellID}
}

// InsertSession registers a session and its exported container reference.
func (s *Store) InsertSession(ctx context.Context, row domain.Session) error {
	t := s.table("session")
	if err := s.guardDuplicate(ctx, t, sessionPredicate, row.SessionKey, sessionArgs(row.SessionKey)...); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`INSERT INTO %s (subject_id, session_time, nwb_file) VALUES (?, ?, ?)`, t)),
		row.SubjectID, encodeTime(row.SessionTime), row.NWBFilePath)
	return errors.Wrapf(err, "insert session %s", row.SessionKey)
}

// InsertBrainLocation registers a stereotaxic lookup row.
func (s *Store) InsertBrainLocation(ctx context.Context, row domain.BrainLocation) error {
	t := s.table("brain_location")
	present, err := s.rowExists(ctx, t, `brain_region = ? AND hemisphere = ?`, row.Region, string(row.Hemisphere))
	if err != nil {
		return err
	}
	if present {
		return errors.Mark(errors.Newf("%s already has a row for %s/%s", t, row.Region, row.Hemisphere), domain.ErrDuplicateKey)
	}
	_, err = s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`INSERT INTO %s (brain_region, hemisphere, coordinate_ref, coordinate_ap, coordinate_ml, coordinate_dv)
			VALUES (?, ?, ?, ?, ?, ?)`, t)),
		row.Region, string(row.Hemisphere), string(row.CoordinateRef), row.AP, row.ML, row.DV)
	return errors.Wrapf(err, "insert brain location %s/%s", row.Region, row.Hemisphere)
}

// InsertWholeCellDevice registers a device lookup row.
func (s *Store) InsertWholeCellDevice(ctx context.Context, row domain.WholeCellDevice) error {
	t := s.table("whole_cell_device")
	present, err := s.rowExists(ctx, t, `device_name = ?`, row.Name)
	if err != nil {
		return err
	}
	if present {
		return errors.Mark(errors.Newf("%s already has a row for %s", t, row.Name), domain.ErrDuplicateKey)
	}
	_, err = s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`INSERT INTO %s (device_name, device_desc) VALUES (?, ?)`, t)),
		row.Name, row.Description)
	return errors.Wrapf(err, "insert whole-cell device %s", row.Name)
}

// InsertCell registers a recorded cell.
func (s *Store) InsertCell(ctx context.Context, row domain.Cell) error {
	t := s.table("cell")
	if err := s.guardDuplicate(ctx, t, cellPredicate, row.CellKey, cellArgs(row.CellKey)...); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`INSERT INTO %s (subject_id, session_time, cell_id, cell_type, brain_region, hemisphere, device_name)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, t)),
		row.SubjectID, encodeTime(row.SessionTime), row.CellID,
		string(row.CellType), row.Region, string(row.Hemisphere), row.DeviceName)
	return errors.Wrapf(err, "insert cell %s", row.CellKey)
}

// FetchSession returns the session row for key.
func (s *Store) FetchSession(ctx context.Context, key domain.SessionKey) (domain.Session, error) {
	row := domain.Session{SessionKey: key}
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT nwb_file FROM %s WHERE %s`, s.table("session"), sessionPredicate)),
		sessionArgs(key)...).Scan(&row.NWBFilePath)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, errors.Mark(errors.Newf("session %s", key), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Session{}, errors.Wrapf(err, "fetch session %s", key)
	}
	return row, nil
}

// FetchCell returns the cell row for key.
func (s *Store) FetchCell(ctx context.Context, key domain.CellKey) (domain.Cell, error) {
	row := domain.Cell{CellKey: key}
	var cellType, hemisphere string
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT cell_type, brain_region, hemisphere, device_name FROM %s WHERE %s`, s.table("cell"), cellPredicate)),
		cellArgs(key)...).Scan(&cellType, &row.Region, &hemisphere, &row.DeviceName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cell{}, errors.Mark(errors.Newf("cell %s", key), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Cell{}, errors.Wrapf(err, "fetch cell %s", key)
	}
	row.CellType = domain.CellType(cellType)
	row.Hemisphere = domain.Hemisphere(hemisphere)
	return row, nil
}

// FetchBrainLocation returns the lookup row for key.
func (s *Store) FetchBrainLocation(ctx context.Context, key domain.BrainLocationKey) (domain.BrainLocation, error) {
	row := domain.BrainLocation{BrainLocationKey: key}
	var ref string
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT coordinate_ref, coordinate_ap, coordinate_ml, coordinate_dv FROM %s
			WHERE brain_region = ? AND hemisphere = ?`, s.table("brain_location"))),
		key.Region, string(key.Hemisphere)).Scan(&ref, &row.AP, &row.ML, &row.DV)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BrainLocation{}, errors.Mark(errors.Newf("brain location %s/%s", key.Region, key.Hemisphere), domain.ErrNotFound)
	}
	if err != nil {
		return domain.BrainLocation{}, errors.Wrapf(err, "fetch brain location %s/%s", key.Region, key.Hemisphere)
	}
	row.CoordinateRef = domain.CoordinateRef(ref)
	return row, nil
}

// FetchWholeCellDevice returns the lookup row for name.
func (s *Store) FetchWholeCellDevice(ctx context.Context, name string) (domain.WholeCellDevice, error) {
	row := domain.WholeCellDevice{Name: name}
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT device_desc FROM %s WHERE device_name = ?`, s.table("whole_cell_device"))),
		name).Scan(&row.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WholeCellDevice{}, errors.Mark(errors.Newf("whole-cell device %s", name), domain.ErrNotFound)
	}
	if err != nil {
		return domain.WholeCellDevice{}, errors.Wrapf(err, "fetch whole-cell device %s", name)
	}
	return row, nil
}

// InsertLickTrace writes the behavioral row for one session.
func (s *Store) InsertLickTrace(ctx context.Context, row domain.LickTrace) error {
	t := s.table("lick_trace")
	if err := s.guardDuplicate(ctx, t, sessionPredicate, row.SessionKey, sessionArgs(row.SessionKey)...); err != nil {
		return err
	}
	left, err := encodeTrace(row.Left)
	if err != nil {
		return err
	}
	right, err := encodeTrace(row.Right)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`INSERT INTO %s (subject_id, session_time, lick_trace_left, lick_trace_right,
			lick_trace_start_time, lick_trace_sampling_rate) VALUES (?, ?, ?, ?, ?, ?)`, t)),
		row.SubjectID, encodeTime(row.SessionTime), left, right, row.StartTime, row.SamplingRate)
	return errors.Wrapf(err, "insert lick trace %s", row.SessionKey)
}

// InsertMembranePotential writes the patch-clamp row for one cell.
func (s *Store) InsertMembranePotential(ctx context.Context, row domain.MembranePotential) error {
	t := s.table("membrane_potential")
	if err := s.guardDuplicate(ctx, t, cellPredicate, row.CellKey, cellArgs(row.CellKey)...); err != nil {
		return err
	}
	mp, err := encodeTrace(row.Potential)
	if err != nil {
		return err
	}
	woSpike, err := encodeTrace(row.PotentialWoSpikes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`INSERT INTO %s (subject_id, session_time, cell_id, nwb_patch_clamp,
			membrane_potential, membrane_potential_wo_spike,
			membrane_potential_start_time, membrane_potential_sampling_rate)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, t)),
		row.SubjectID, encodeTime(row.SessionTime), row.CellID, row.PatchClampPath,
		mp, woSpike, row.StartTime, row.SamplingRate)
	return errors.Wrapf(err, "insert membrane potential %s", row.CellKey)
}

// InsertCurrentInjection writes the stimulus row for one cell.
func (s *Store) InsertCurrentInjection(ctx context.Context, row domain.CurrentInjection) error {
	t := s.table("current_injection")
	if err := s.guardDuplicate(ctx, t, cellPredicate, row.CellKey, cellArgs(row.CellKey)...); err != nil {
		return err
	}
	ci, err := encodeTrace(row.Current)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`INSERT INTO %s (subject_id, session_time, cell_id, nwb_current_stim,
			current_injection, current_injection_start_time, current_injection_sampling_rate)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, t)),
		row.SubjectID, encodeTime(row.SessionTime), row.CellID, row.StimulusPath,
		ci, row.StartTime, row.SamplingRate)
	return errors.Wrapf(err, "insert current injection %s", row.CellKey)
}

// FetchLickTrace returns the behavioral row for key.
func (s *Store) FetchLickTrace(ctx context.Context, key domain.SessionKey) (domain.LickTrace, error) {
	row := domain.LickTrace{SessionKey: key}
	var left, right []byte
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT lick_trace_left, lick_trace_right, lick_trace_start_time, lick_trace_sampling_rate
			FROM %s WHERE %s`, s.table("lick_trace"), sessionPredicate)),
		sessionArgs(key)...).Scan(&left, &right, &row.StartTime, &row.SamplingRate)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LickTrace{}, errors.Mark(errors.Newf("lick trace %s", key), domain.ErrNotFound)
	}
	if err != nil {
		return domain.LickTrace{}, errors.Wrapf(err, "fetch lick trace %s", key)
	}
	if row.Left, err = decodeTrace(left); err != nil {
		return domain.LickTrace{}, err
	}
	if row.Right, err = decodeTrace(right); err != nil {
		return domain.LickTrace{}, err
	}
	return row, nil
}

// FetchMembranePotential returns the patch-clamp row for key.
func (s *Store) FetchMembranePotential(ctx context.Context, key domain.CellKey) (domain.MembranePotential, error) {
	row := domain.MembranePotential{CellKey: key}
	var mp, woSpike []byte
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT nwb_patch_clamp, membrane_potential, membrane_potential_wo_spike,
			membrane_potential_start_time, membrane_potential_sampling_rate
			FROM %s WHERE %s`, s.table("membrane_potential"), cellPredicate)),
		cellArgs(key)...).Scan(&row.PatchClampPath, &mp, &woSpike, &row.StartTime, &row.SamplingRate)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MembranePotential{}, errors.Mark(errors.Newf("membrane potential %s", key), domain.ErrNotFound)
	}
	if err != nil {
		return domain.MembranePotential{}, errors.Wrapf(err, "fetch membrane potential %s", key)
	}
	if row.Potential, err = decodeTrace(mp); err != nil {
		return domain.MembranePotential{}, err
	}
	if row.PotentialWoSpikes, err = decodeTrace(woSpike); err != nil {
		return domain.MembranePotential{}, err
	}
	return row, nil
}

// FetchCurrentInjection returns the stimulus row for key.
func (s *Store) FetchCurrentInjection(ctx context.Context, key domain.CellKey) (domain.CurrentInjection, error) {
	row := domain.CurrentInjection{CellKey: key}
	var ci []byte
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT nwb_current_stim, current_injection, current_injection_start_time, current_injection_sampling_rate
			FROM %s WHERE %s`, s.table("current_injection"), cellPredicate)),
		cellArgs(key)...).Scan(&row.StimulusPath, &ci, &row.StartTime, &row.SamplingRate)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CurrentInjection{}, errors.Mark(errors.Newf("current injection %s", key), domain.ErrNotFound)
	}
	if err != nil {
		return domain.CurrentInjection{}, errors.Wrapf(err, "fetch current injection %s", key)
	}
	if row.Current, err = decodeTrace(ci); err != nil {
		return domain.CurrentInjection{}, err
	}
	return row, nil
}

// SessionsMissingLickTrace lists sessions with no behavioral row yet.
func (s *Store) SessionsMissingLickTrace(ctx context.Context) ([]domain.SessionKey, error) {
	query := fmt.Sprintf(`SELECT s.subject_id, s.session_time FROM %s s
		LEFT JOIN %s lt ON lt.subject_id = s.subject_id AND lt.session_time = s.session_time
		WHERE lt.subject_id IS NULL
		ORDER BY s.subject_id, s.session_time`, s.table("session"), s.table("lick_trace"))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query sessions missing lick trace")
	}
	defer func() { _ = rows.Close() }()
	var keys []domain.SessionKey
	for rows.Next() {
		var k domain.SessionKey
		var raw string
		if err := rows.Scan(&k.SubjectID, &raw); err != nil {
			return nil, errors.Wrap(err, "scan session key")
		}
		if k.SessionTime, err = decodeTime(raw); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) cellsMissing(ctx context.Context, target string) ([]domain.CellKey, error) {
	query := fmt.Sprintf(`SELECT c.subject_id, c.session_time, c.cell_id FROM %s c
		LEFT JOIN %s t ON t.subject_id = c.subject_id AND t.session_time = c.session_time AND t.cell_id = c.cell_id
		WHERE t.subject_id IS NULL
		ORDER BY c.subject_id, c.session_time, c.cell_id`, s.table("cell"), target)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "query cells missing %s", target)
	}
	defer func() { _ = rows.Close() }()
	var keys []domain.CellKey
	for rows.Next() {
		var k domain.CellKey
		var raw string
		if err := rows.Scan(&k.SubjectID, &raw, &k.CellID); err != nil {
			return nil, errors.Wrap(err, "scan cell key")
		}
		if k.SessionTime, err = decodeTime(raw); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CellsMissingMembranePotential lists cells with no patch-clamp row yet.
func (s *Store) CellsMissingMembranePotential(ctx context.Context) ([]domain.CellKey, error) {
	return s.cellsMissing(ctx, s.table("membrane_potential"))
}

// CellsMissingCurrentInjection lists cells with no stimulus row yet.
func (s *Store) CellsMissingCurrentInjection(ctx context.Context) ([]domain.CellKey, error) {
	return s.cellsMissing(ctx, s.table("current_injection"))
}
