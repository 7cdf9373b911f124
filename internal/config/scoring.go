package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Dan9191/bnpl-service/internal/scoring"
)

// scoringFile is the YAML shape of the scoring configuration. Curves are
// lists of [value, score] pairs and tiers are [score_min, score_max,
// limit_cents] triples.
type scoringFile struct {
	ApprovalThreshold int `yaml:"approval_threshold"`
	WindowDays        int `yaml:"window_days"`
	ThinFile          struct {
		MinTransactions     int   `yaml:"min_transactions"`
		MinHistoryDays      int   `yaml:"min_history_days"`
		StarterLimitCents   int64 `yaml:"starter_limit_cents"`
		ApproveEmptyHistory bool  `yaml:"approve_empty_history"`
	} `yaml:"thin_file"`
	Weights struct {
		ADB   float64 `yaml:"adb"`
		Ratio float64 `yaml:"ratio"`
		NSF   float64 `yaml:"nsf"`
	} `yaml:"weights"`
	Curves struct {
		ADB   [][2]float64 `yaml:"adb,flow"`
		Ratio [][2]float64 `yaml:"ratio,flow"`
		NSF   [][2]float64 `yaml:"nsf,flow"`
	} `yaml:"curves"`
	GigWorker struct {
		ConsistencyThreshold float64 `yaml:"consistency_threshold"`
		RatioThreshold       float64 `yaml:"ratio_threshold"`
		Bonus                int     `yaml:"bonus"`
	} `yaml:"gig_worker"`
	Tiers [][3]int64 `yaml:"credit_limit_tiers,flow"`
}

// LoadScoring builds the scoring configuration from the built-in defaults,
// then the YAML file at path (if any), then environment overrides. The
// result is not validated here; scoring.NewEngine does that.
func LoadScoring(path string) (scoring.Config, error) {
	file := toFile(scoring.DefaultConfig())

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return scoring.Config{}, fmt.Errorf("failed to read scoring config: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return scoring.Config{}, fmt.Errorf("failed to parse scoring config %s: %w", path, err)
		}
	}

	cfg := file.toConfig()
	if err := applyScoringEnv(&cfg); err != nil {
		return scoring.Config{}, err
	}
	return cfg, nil
}

// MarshalScoring renders cfg in the YAML file format.
func MarshalScoring(cfg scoring.Config) ([]byte, error) {
	return yaml.Marshal(toFile(cfg))
}

func applyScoringEnv(cfg *scoring.Config) error {
	var err error
	if cfg.ApprovalThreshold, err = getInt("APPROVAL_THRESHOLD", cfg.ApprovalThreshold); err != nil {
		return err
	}
	if cfg.Weights.ADB, err = getFloat("WEIGHT_ADB", cfg.Weights.ADB); err != nil {
		return err
	}
	if cfg.Weights.Ratio, err = getFloat("WEIGHT_RATIO", cfg.Weights.Ratio); err != nil {
		return err
	}
	if cfg.Weights.NSF, err = getFloat("WEIGHT_NSF", cfg.Weights.NSF); err != nil {
		return err
	}
	if cfg.ThinFile.MinTransactions, err = getInt("THIN_FILE_MIN_TRANSACTIONS", cfg.ThinFile.MinTransactions); err != nil {
		return err
	}
	if cfg.ThinFile.MinHistoryDays, err = getInt("THIN_FILE_MIN_DAYS", cfg.ThinFile.MinHistoryDays); err != nil {
		return err
	}
	starter, err := getInt("THIN_FILE_LIMIT_CENTS", int(cfg.ThinFile.StarterLimitCents))
	if err != nil {
		return err
	}
	cfg.ThinFile.StarterLimitCents = int64(starter)
	if cfg.GigWorker.ConsistencyThreshold, err = getFloat("GIG_WORKER_CONSISTENCY_THRESHOLD", cfg.GigWorker.ConsistencyThreshold); err != nil {
		return err
	}
	if cfg.GigWorker.RatioThreshold, err = getFloat("GIG_WORKER_RATIO_THRESHOLD", cfg.GigWorker.RatioThreshold); err != nil {
		return err
	}
	if cfg.GigWorker.Bonus, err = getInt("GIG_WORKER_BONUS", cfg.GigWorker.Bonus); err != nil {
		return err
	}

	if raw := getEnv("CREDIT_LIMIT_TIERS", ""); raw != "" {
		var triples [][3]int64
		if err := json.Unmarshal([]byte(raw), &triples); err != nil {
			return fmt.Errorf("CREDIT_LIMIT_TIERS must be a JSON list of [min,max,cents]: %w", err)
		}
		cfg.Tiers = toTiers(triples)
	}
	return nil
}

func toFile(cfg scoring.Config) scoringFile {
	var f scoringFile
	f.ApprovalThreshold = cfg.ApprovalThreshold
	f.WindowDays = cfg.WindowDays
	f.ThinFile.MinTransactions = cfg.ThinFile.MinTransactions
	f.ThinFile.MinHistoryDays = cfg.ThinFile.MinHistoryDays
	f.ThinFile.StarterLimitCents = cfg.ThinFile.StarterLimitCents
	f.ThinFile.ApproveEmptyHistory = cfg.ThinFile.ApproveEmptyHistory
	f.Weights.ADB = cfg.Weights.ADB
	f.Weights.Ratio = cfg.Weights.Ratio
	f.Weights.NSF = cfg.Weights.NSF
	f.Curves.ADB = fromCurve(cfg.ADBCurve)
	f.Curves.Ratio = fromCurve(cfg.RatioCurve)
	f.Curves.NSF = fromCurve(cfg.NSFCurve)
	f.GigWorker.ConsistencyThreshold = cfg.GigWorker.ConsistencyThreshold
	f.GigWorker.RatioThreshold = cfg.GigWorker.RatioThreshold
	f.GigWorker.Bonus = cfg.GigWorker.Bonus
	for _, t := range cfg.Tiers {
		f.Tiers = append(f.Tiers, [3]int64{int64(t.ScoreMin), int64(t.ScoreMax), t.LimitCents})
	}
	return f
}

func (f scoringFile) toConfig() scoring.Config {
	return scoring.Config{
		ApprovalThreshold: f.ApprovalThreshold,
		WindowDays:        f.WindowDays,
		ThinFile: scoring.ThinFilePolicy{
			MinTransactions:     f.ThinFile.MinTransactions,
			MinHistoryDays:      f.ThinFile.MinHistoryDays,
			StarterLimitCents:   f.ThinFile.StarterLimitCents,
			ApproveEmptyHistory: f.ThinFile.ApproveEmptyHistory,
		},
		Weights: scoring.Weights{
			ADB:   f.Weights.ADB,
			Ratio: f.Weights.Ratio,
			NSF:   f.Weights.NSF,
		},
		ADBCurve:   toCurve(f.Curves.ADB),
		RatioCurve: toCurve(f.Curves.Ratio),
		NSFCurve:   toCurve(f.Curves.NSF),
		GigWorker: scoring.GigWorkerPolicy{
			ConsistencyThreshold: f.GigWorker.ConsistencyThreshold,
			RatioThreshold:       f.GigWorker.RatioThreshold,
			Bonus:                f.GigWorker.Bonus,
		},
		Tiers: toTiers(f.Tiers),
	}
}

func fromCurve(c scoring.Curve) [][2]float64 {
	out := make([][2]float64, 0, len(c))
	for _, bp := range c {
		out = append(out, [2]float64{bp.Value, bp.Score})
	}
	return out
}

func toCurve(points [][2]float64) scoring.Curve {
	c := make(scoring.Curve, 0, len(points))
	for _, p := range points {
		c = append(c, scoring.Breakpoint{Value: p[0], Score: p[1]})
	}
	return c
}

func toTiers(triples [][3]int64) scoring.Tiers {
	t := make(scoring.Tiers, 0, len(triples))
	for _, tr := range triples {
		t = append(t, scoring.Tier{ScoreMin: int(tr[0]), ScoreMax: int(tr[1]), LimitCents: tr[2]})
	}
	return t
}

// ScoringStore holds the live scoring engine. Reloads swap the whole engine
// so a request always sees one consistent configuration.
type ScoringStore struct {
	path   string
	log    *logrus.Logger
	engine atomic.Pointer[scoring.Engine]
}

// NewScoringStore loads and validates the scoring configuration. Any error
// here must stop the process.
func NewScoringStore(path string, log *logrus.Logger) (*ScoringStore, error) {
	s := &ScoringStore{path: path, log: log}
	engine, err := s.load()
	if err != nil {
		return nil, err
	}
	s.engine.Store(engine)
	return s, nil
}

// Engine returns the current engine snapshot.
func (s *ScoringStore) Engine() *scoring.Engine {
	return s.engine.Load()
}

// Reload re-reads the configuration. On failure the previous engine stays
// in place.
func (s *ScoringStore) Reload() error {
	engine, err := s.load()
	if err != nil {
		s.log.WithError(err).Error("Scoring config reload rejected, keeping previous config")
		return err
	}
	s.engine.Store(engine)
	s.log.WithField("path", s.path).Info("Scoring config reloaded")
	return nil
}

func (s *ScoringStore) load() (*scoring.Engine, error) {
	cfg, err := LoadScoring(s.path)
	if err != nil {
		return nil, err
	}
	engine, err := scoring.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scoring engine: %w", err)
	}
	return engine, nil
}
