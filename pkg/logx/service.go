package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig routes log events at or above MinLevel to an operator chat.
type TelegramConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./watchbot.log"

// Service owns the active log outputs.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File
	tg   *telegramSink

	root atomic.Pointer[zerolog.Logger]

	// out is the console destination; tests replace it.
	out io.Writer
}

// New builds the service, applies cfg and returns a live root Logger.
// sender may be nil when Telegram logging is not used.
func New(cfg Config, sender Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{out: Stdout(), tg: newTelegramSink(sender)}
	boot := zerolog.New(consoleWriter(s.out)).Level(ParseLevel(cfg.Level, LevelInfo)).With().Timestamp().Logger()
	s.root.Store(&boot)
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Logger returns a live logger bound to the service.
func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSender attaches the Telegram sender once the transport is up.
func (s *Service) SetSender(sender Sender) { s.tg.setSender(sender) }

// Apply swaps outputs and levels. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(s.out))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}

	s.tg.configure(cfg.Telegram)
	if cfg.Telegram.Enabled {
		writers = append(writers, s.tg)
		if cfg.Telegram.ChatID == 0 {
			fmt.Fprintln(Stderr(), "logx: telegram logging enabled but chat_id is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(s.out))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close releases the file output and stops the Telegram worker.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	s.tg.stop()
	if f != nil {
		return f.Close()
	}
	return nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}

// Stdout returns the process stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the process stderr sink.
func Stderr() io.Writer { return os.Stderr }
