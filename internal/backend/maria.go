package backend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"

	"github.com/annel0/mtworld/internal/vec"
)

// MariaBackend хранит блоки в клиент-серверной MariaDB/MySQL.
// Логическая схема та же, что у sqlite-бэкенда: таблица blocks
// (pos — линейный ключ, data — сжатый конверт блока).
// Сбои уровня соединения помечаются как временные — вызывающий
// вправе повторить операцию.
type MariaBackend struct {
	db *sql.DB
}

// NewMariaBackend подключается по DSN (user:pass@tcp(host:port)/dbname)
// и при необходимости создает схему.
//
// Размер пула — забота вызывающего: maxConns ≤ 0 оставляет
// значение по умолчанию database/sql.
func NewMariaBackend(dsn string, maxConns int) (*MariaBackend, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, &Error{Backend: "maria", Op: "open", Err: err}
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Backend: "maria", Op: "ping", Transient: isMariaTransient(err), Err: err}
	}

	repo := &MariaBackend{db: db}
	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// createTable создает таблицу blocks, если она не существует.
func (m *MariaBackend) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS blocks (
			pos  BIGINT   PRIMARY KEY,
			data LONGBLOB NOT NULL
		) ENGINE=InnoDB
	`
	if _, err := m.db.Exec(query); err != nil {
		return &Error{Backend: "maria", Op: "create schema", Transient: isMariaTransient(err), Err: err}
	}
	return nil
}

// Get возвращает сырые байты блока по позиции.
func (m *MariaBackend) Get(ctx context.Context, pos vec.Pos) ([]byte, bool, error) {
	key, err := pos.DatabaseKey()
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = m.db.QueryRowContext(ctx, `SELECT data FROM blocks WHERE pos = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Backend: "maria", Op: "get", Transient: isMariaTransient(err), Err: err}
	}
	return data, true, nil
}

// Set записывает блок; REPLACE атомарен на уровне строки.
func (m *MariaBackend) Set(ctx context.Context, pos vec.Pos, data []byte) error {
	key, err := pos.DatabaseKey()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("пустой блок не записывается (позиция %+v)", pos)
	}

	if _, err := m.db.ExecContext(ctx, `REPLACE INTO blocks (pos, data) VALUES (?, ?)`, key, data); err != nil {
		return &Error{Backend: "maria", Op: "set", Transient: isMariaTransient(err), Err: err}
	}
	return nil
}

// Delete удаляет блок; отсутствующая позиция — не ошибка.
func (m *MariaBackend) Delete(ctx context.Context, pos vec.Pos) error {
	key, err := pos.DatabaseKey()
	if err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM blocks WHERE pos = ?`, key); err != nil {
		return &Error{Backend: "maria", Op: "delete", Transient: isMariaTransient(err), Err: err}
	}
	return nil
}

// AllPositions перечисляет позиции серверным курсором по колонке ключей.
func (m *MariaBackend) AllPositions(ctx context.Context) <-chan PosResult {
	out := make(chan PosResult)
	go func() {
		defer close(out)

		rows, err := m.db.QueryContext(ctx, `SELECT pos FROM blocks`)
		if err != nil {
			emit(ctx, out, PosResult{Err: &Error{
				Backend: "maria", Op: "all_positions", Transient: isMariaTransient(err), Err: err,
			}})
			return
		}
		defer rows.Close()

		for rows.Next() {
			var key int64
			if err := rows.Scan(&key); err != nil {
				emit(ctx, out, PosResult{Err: &Error{Backend: "maria", Op: "all_positions", Err: err}})
				return
			}
			if !emit(ctx, out, PosResult{Pos: vec.FromDatabaseKey(key)}) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			emit(ctx, out, PosResult{Err: &Error{
				Backend: "maria", Op: "all_positions", Transient: isMariaTransient(err), Err: err,
			}})
		}
	}()
	return out
}

// Close закрывает пул соединений.
func (m *MariaBackend) Close() error {
	return m.db.Close()
}

// isMariaTransient классифицирует сбои уровня соединения как временные.
func isMariaTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
