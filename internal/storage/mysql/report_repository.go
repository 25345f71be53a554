package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ReportRecord 表示一次工具执行的落库结构。analyze_address 之外的工具
// 也会落库，report_json 仅在产出结构化报告时非空。
type ReportRecord struct {
	ID          int64
	Tool        string
	Chain       string
	Address     string
	Output      string
	ReportJSON  string
	ChainID     string
	BlockNumber string
	CreatedAt   int64
	UpdatedAt   int64
}

// ErrReportNotFound 表示指定的报告记录不存在。
var ErrReportNotFound = errors.New("report record not found")

// ReportRepository 抽象工具执行历史的持久化接口。
type ReportRepository interface {
	Create(ctx context.Context, record *ReportRecord) error
	GetByID(ctx context.Context, id int64) (*ReportRecord, error)
	Update(ctx context.Context, record ReportRecord) error
	Delete(ctx context.Context, id int64) error
	ListLatest(ctx context.Context, limit int) ([]ReportRecord, error)
	ListByAddress(ctx context.Context, address string, limit int) ([]ReportRecord, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo ReportRepository) error) error
}

// MemoryReportRepository 使用本地 JSON 行文件模拟 MySQL 的效果，方便
// 开发环境在没有数据库时运行。
type MemoryReportRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []ReportRecord
	nextID   int64
}

// NewMemoryReportRepository 创建一个内存报告仓库。
func NewMemoryReportRepository(dataDir string) (*MemoryReportRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "reports.log")
	repo := &MemoryReportRepository{dataFile: path, nextID: 1}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *MemoryReportRepository) loadFromDisk() error {
	file, err := os.Open(m.dataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取报告日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record ReportRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return fmt.Errorf("解析报告日志失败: %w", err)
		}
		m.records = append(m.records, record)
		if record.ID >= m.nextID {
			m.nextID = record.ID + 1
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("遍历报告日志失败: %w", err)
	}
	return nil
}

func (m *MemoryReportRepository) persistLocked() error {
	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("打开报告日志失败: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range m.records {
		encoded, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("序列化报告记录失败: %w", err)
		}
		if _, err := writer.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("写入报告日志失败: %w", err)
		}
	}
	return writer.Flush()
}

// Create 落库一条新的执行记录并分配 ID。
func (m *MemoryReportRepository) Create(_ context.Context, record *ReportRecord) error {
	if record == nil {
		return errors.New("record 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.nextID
	m.nextID++
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	if record.UpdatedAt == 0 {
		record.UpdatedAt = now
	}
	m.records = append(m.records, *record)
	return m.persistLocked()
}

// GetByID 返回指定记录。
func (m *MemoryReportRepository) GetByID(_ context.Context, id int64) (*ReportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.records {
		if record.ID == id {
			clone := record
			return &clone, nil
		}
	}
	return nil, ErrReportNotFound
}

// Update 覆盖已存在的记录。
func (m *MemoryReportRepository) Update(_ context.Context, record ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == record.ID {
			m.records[i] = record
			return m.persistLocked()
		}
	}
	return ErrReportNotFound
}

// Delete 删除指定记录。
func (m *MemoryReportRepository) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return m.persistLocked()
		}
	}
	return ErrReportNotFound
}

// ListLatest 按创建时间倒序返回最近的记录。
func (m *MemoryReportRepository) ListLatest(_ context.Context, limit int) ([]ReportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(limit, func(ReportRecord) bool { return true }), nil
}

// ListByAddress 返回某个地址最近的分析历史。
func (m *MemoryReportRepository) ListByAddress(_ context.Context, address string, limit int) ([]ReportRecord, error) {
	address = strings.TrimSpace(address)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(limit, func(record ReportRecord) bool {
		return strings.EqualFold(record.Address, address)
	}), nil
}

func (m *MemoryReportRepository) collectLocked(limit int, match func(ReportRecord) bool) []ReportRecord {
	if limit <= 0 {
		limit = 10
	}
	results := make([]ReportRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(results) < limit; i-- {
		if match(m.records[i]) {
			results = append(results, m.records[i])
		}
	}
	return results
}

// WithTransaction 在失败时回滚内存状态与落盘文件。
func (m *MemoryReportRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo ReportRepository) error) error {
	if fn == nil {
		return errors.New("事务函数不能为空")
	}

	m.mu.Lock()
	snapshot := append([]ReportRecord(nil), m.records...)
	snapshotNextID := m.nextID
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.records = snapshot
		m.nextID = snapshotNextID
		restoreErr := m.persistLocked()
		m.mu.Unlock()
		if restoreErr != nil {
			return fmt.Errorf("回滚报告日志失败: %w", restoreErr)
		}
		return err
	}
	return nil
}

// Close 仅保证数据已落盘。
func (m *MemoryReportRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked()
}

// SQLReportRepository 使用 MySQL 保存工具执行历史。
type SQLReportRepository struct {
	db      *sql.DB
	querier querier
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLReportRepository 建立连接池并应用迁移。
func NewSQLReportRepository(ctx context.Context, cfg Config) (*SQLReportRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLReportRepository{db: db, querier: db}, nil
}

const reportColumns = `id, tool, chain, address, output, report_json, chain_id, block_number, created_at, updated_at`

// Create 插入一条执行记录。
func (s *SQLReportRepository) Create(ctx context.Context, record *ReportRecord) error {
	if record == nil {
		return errors.New("record 不能为空")
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	if record.UpdatedAt == 0 {
		record.UpdatedAt = now
	}

	const stmt = `INSERT INTO analysis_reports
        (tool, chain, address, output, report_json, chain_id, block_number, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.querier.ExecContext(ctx, stmt,
		record.Tool,
		record.Chain,
		record.Address,
		record.Output,
		record.ReportJSON,
		record.ChainID,
		record.BlockNumber,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("插入报告记录失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取报告记录 ID 失败: %w", err)
	}
	record.ID = id
	return nil
}

// GetByID 返回指定记录。
func (s *SQLReportRepository) GetByID(ctx context.Context, id int64) (*ReportRecord, error) {
	row := s.querier.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM analysis_reports WHERE id = ?`, id)
	var record ReportRecord
	if err := scanReport(row.Scan, &record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("查询报告记录失败: %w", err)
	}
	return &record, nil
}

// Update 覆盖已存在的记录。
func (s *SQLReportRepository) Update(ctx context.Context, record ReportRecord) error {
	const stmt = `UPDATE analysis_reports SET tool = ?, chain = ?, address = ?, output = ?, report_json = ?,
        chain_id = ?, block_number = ?, updated_at = ? WHERE id = ?`
	res, err := s.querier.ExecContext(ctx, stmt,
		record.Tool,
		record.Chain,
		record.Address,
		record.Output,
		record.ReportJSON,
		record.ChainID,
		record.BlockNumber,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("更新报告记录失败: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrReportNotFound
	}
	return nil
}

// Delete 删除指定记录。
func (s *SQLReportRepository) Delete(ctx context.Context, id int64) error {
	res, err := s.querier.ExecContext(ctx, `DELETE FROM analysis_reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除报告记录失败: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrReportNotFound
	}
	return nil
}

// ListLatest 按创建时间倒序返回最近的记录。
func (s *SQLReportRepository) ListLatest(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.querier.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM analysis_reports ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询报告列表失败: %w", err)
	}
	return collectReports(rows)
}

// ListByAddress 返回某个地址最近的分析历史。
func (s *SQLReportRepository) ListByAddress(ctx context.Context, address string, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.querier.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM analysis_reports WHERE address = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		strings.TrimSpace(address), limit)
	if err != nil {
		return nil, fmt.Errorf("查询地址报告历史失败: %w", err)
	}
	return collectReports(rows)
}

// WithTransaction 在单个数据库事务中执行 fn。
func (s *SQLReportRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo ReportRepository) error) error {
	if fn == nil {
		return errors.New("事务函数不能为空")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启报告事务失败: %w", err)
	}
	txRepo := &SQLReportRepository{db: s.db, querier: tx}
	if err := fn(ctx, txRepo); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交报告事务失败: %w", err)
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *SQLReportRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanReport(scan func(dest ...any) error, record *ReportRecord) error {
	return scan(
		&record.ID,
		&record.Tool,
		&record.Chain,
		&record.Address,
		&record.Output,
		&record.ReportJSON,
		&record.ChainID,
		&record.BlockNumber,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
}

func collectReports(rows *sql.Rows) ([]ReportRecord, error) {
	defer rows.Close()
	var records []ReportRecord
	for rows.Next() {
		var record ReportRecord
		if err := scanReport(rows.Scan, &record); err != nil {
			return nil, fmt.Errorf("解析报告记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历报告记录失败: %w", err)
	}
	return records, nil
}

var (
	_ ReportRepository = (*MemoryReportRepository)(nil)
	_ ReportRepository = (*SQLReportRepository)(nil)
)
