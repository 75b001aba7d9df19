package mapblock

import "fmt"

// DecodeError описывает отказ декодирования мапблока: усечённый буфер,
// некорректный префикс длины, неизвестная версия или нарушение инварианта
// таблицы имён. Кодек никогда не паникует на битых данных — все такие
// пути возвращают эту ошибку.
type DecodeError struct {
	// Version — байт версии блока (0, если не дочитан даже он).
	Version uint8
	// Reason — краткая причина для логов.
	Reason string
	// Err — исходная ошибка, если была.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("мапблок версии %d повреждён: %s: %v", e.Version, e.Reason, e.Err)
	}
	return fmt.Sprintf("мапблок версии %d повреждён: %s", e.Version, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// decodeErr — внутренний конструктор DecodeError.
func decodeErr(version uint8, reason string, err error) *DecodeError {
	return &DecodeError{Version: version, Reason: reason, Err: err}
}

// CompressionError — непрозрачный отказ примитива сжатия/распаковки.
type CompressionError struct {
	// Algo — имя алгоритма ("zstd" или "zlib").
	Algo string
	Err  error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("ошибка %s: %v", e.Algo, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }
