package risk

import (
	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

// CorrelationConfig parametrizes the Correlation Service.
type CorrelationConfig struct {
	Enabled                bool
	MaxCorrelation         decimal.Decimal
	MaxSectorPct           decimal.Decimal
	MaxAssetClassPct       decimal.Decimal
	MaxConcurrentPositions int
	StaticCorrelations     map[string]decimal.Decimal // "SYM1/SYM2" -> correlation, symmetric
	SymbolSector           map[string]core.Sector
	SymbolAssetClass       map[string]core.AssetClass
}

// CorrelationService blocks new entries that would push correlated,
// sector, or asset-class exposure past the configured caps. It never
// blocks an exit (reversal pass-through): Check is only ever called for
// ActionEnterLong.
type CorrelationService struct {
	cfg CorrelationConfig
}

// NewCorrelationService constructs a CorrelationService.
func NewCorrelationService(cfg CorrelationConfig) *CorrelationService {
	return &CorrelationService{cfg: cfg}
}

// Check evaluates a proposed new entry in `symbol` against the currently
// held positions. A symbol already held passes through unconditionally: it
// is closing or reducing exposure, not increasing concentration.
func (c *CorrelationService) Check(symbol string, openPositions []core.PositionTracking) Verdict {
	if !c.cfg.Enabled {
		return Accept()
	}

	for _, p := range openPositions {
		if p.Symbol == symbol {
			return Accept()
		}
	}

	for _, p := range openPositions {
		corr, ok := c.pairCorrelation(symbol, p.Symbol)
		if ok && corr.GreaterThan(c.cfg.MaxCorrelation) {
			return RejectRisk("correlation with open position " + p.Symbol + " exceeds max_correlation")
		}
	}

	if c.cfg.MaxConcurrentPositions <= 0 {
		return Accept()
	}

	sector := c.cfg.SymbolSector[symbol]
	if sector == "" {
		sector = core.SectorUnknown
	}
	assetClass := c.cfg.SymbolAssetClass[symbol]

	sectorCount := 0
	assetClassCount := 0
	for _, p := range openPositions {
		if sector != core.SectorUnknown && c.cfg.SymbolSector[p.Symbol] == sector {
			sectorCount++
		}
		if c.cfg.SymbolAssetClass[p.Symbol] == assetClass {
			assetClassCount++
		}
	}
	denom := decimal.NewFromInt(int64(c.cfg.MaxConcurrentPositions))

	if sector != core.SectorUnknown && !c.cfg.MaxSectorPct.IsZero() {
		ratio := decimal.NewFromInt(int64(sectorCount + 1)).Div(denom)
		if ratio.GreaterThan(c.cfg.MaxSectorPct) {
			return RejectRisk("sector concentration would exceed max_sector_pct")
		}
	}
	if assetClass != "" && !c.cfg.MaxAssetClassPct.IsZero() {
		ratio := decimal.NewFromInt(int64(assetClassCount + 1)).Div(denom)
		if ratio.GreaterThan(c.cfg.MaxAssetClassPct) {
			return RejectRisk("asset-class concentration would exceed max_asset_class_pct")
		}
	}

	return Accept()
}

func (c *CorrelationService) pairCorrelation(a, b string) (decimal.Decimal, bool) {
	if v, ok := c.cfg.StaticCorrelations[a+"/"+b]; ok {
		return v, true
	}
	if v, ok := c.cfg.StaticCorrelations[b+"/"+a]; ok {
		return v, true
	}
	return decimal.Zero, false
}
