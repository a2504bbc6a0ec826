/*
calculator.go - Monthly Totals Calculator

PURPOSE:
  Builds the monthly ledger view for one church-month: income breakdown,
  national/local distribution, expenses, pastoral salary, and the balance
  classification that decides whether the period can be closed. Read-only,
  idempotent, side-effect free.

THE FORMULAS:
  base congregacional = diezmos + ofrendas            (NOT anexos, NOT designados)
  fondo nacional      = 10% of base, rounded to whole Guaraníes,
                        + 100% of every fully remitted bucket
  disponible local    = total income - fondo nacional
  salario pastoral    = residual: income - fondo nacional - gastos operativos,
                        floored at zero (and optionally capped by policy)
  saldo calculado     = income - fondo nacional - gastos operativos - salario

  The salary is a residual, not a percentage. With no cap configured the
  saldo is zero whenever the residual is non-negative; a deficit appears
  when operating expenses overshoot, a surplus only when a salary cap
  leaves money on the table.

CLASSIFICATION (evaluated in this exact order, epsilon = 1 Guaraní):
  1. total income == 0                        -> sin_entradas        (no close)
  2. |saldo| < 1 and registrado == calculado  -> balanceado          (can close)
  3. |saldo| < 1 and registrado == 0          -> pendiente_factura_pastoral
  4. |saldo| < 1 otherwise                    -> discrepancia_honorarios
  5. saldo < -1                               -> deficit             (force only)
  6. saldo > +1                               -> superavit           (force only)

SEE ALSO:
  - buckets.go: Which buckets are fully remitted
  - closer.go: Consumes the view and posts the matching transactions
*/
package treasury

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// BalanceEpsilon is the tolerance for "balanced" comparisons. Amounts are
// whole Guaraníes with no fractional unit, so one unit is the smallest
// representable difference. Ports to fractional currencies must rescale.
const BalanceEpsilon = 1

var nationalLevyRate = decimal.NewFromFloat(0.10)

// NationalLevy returns 10% of the congregational base, rounded half-up to
// whole Guaraníes.
func NationalLevy(base int64) int64 {
	return decimal.NewFromInt(base).Mul(nationalLevyRate).Round(0).IntPart()
}

// =============================================================================
// LEDGER VIEW
// =============================================================================

type BalanceStatus string

const (
	StatusSinEntradas       BalanceStatus = "sin_entradas"
	StatusBalanceado        BalanceStatus = "balanceado"
	StatusPendienteFactura  BalanceStatus = "pendiente_factura_pastoral"
	StatusDiscrepancia      BalanceStatus = "discrepancia_honorarios"
	StatusDeficit           BalanceStatus = "deficit"
	StatusSuperavit         BalanceStatus = "superavit"
)

type EntradasView struct {
	Diezmos            int64            `json:"diezmos"`
	Ofrendas           int64            `json:"ofrendas"`
	Anexos             int64            `json:"anexos"`
	Otros              int64            `json:"otros"`
	BaseCongregacional int64            `json:"base_congregacional"`
	Designados         map[Bucket]int64 `json:"designados"`
	TotalDesignados    int64            `json:"total_designados"`
	Total              int64            `json:"total"`
}

type DistribucionView struct {
	FondoNacionalBase       int64 `json:"fondo_nacional_base"`       // 10% of congregational base
	FondoNacionalDesignados int64 `json:"fondo_nacional_designados"` // 100% remitted buckets
	FondoNacionalTotal      int64 `json:"fondo_nacional_total"`
	DisponibleLocal         int64 `json:"disponible_local"`
}

type GastosView struct {
	Operativos           int64            `json:"operativos"`
	PorCategoria         map[string]int64 `json:"por_categoria"`
	HonorariosRegistrado int64            `json:"honorarios_registrado"`
}

type SalarioView struct {
	Calculado  int64 `json:"calculado"`
	Registrado int64 `json:"registrado"`
	Diferencia int64 `json:"diferencia"`
}

type BalanceView struct {
	SaldoCalculado int64         `json:"saldo_calculado"`
	Status         BalanceStatus `json:"status"`
	PuedeCerrar    bool          `json:"puede_cerrar"`
	Mensaje        string        `json:"mensaje"`
	Sugerencias    []string      `json:"sugerencias"`
}

// LedgerView is the full monthly reconciliation view for one church-month.
type LedgerView struct {
	Period       Period           `json:"period"`
	Entradas     EntradasView     `json:"entradas"`
	Distribucion DistribucionView `json:"distribucion"`
	Gastos       GastosView       `json:"gastos"`
	Salario      SalarioView      `json:"salario_pastoral"`
	Balance      BalanceView      `json:"balance"`
	Report       *Report          `json:"report,omitempty"`
}

// RemittedNonZero returns the fully remitted buckets with a nonzero total,
// in stable order. The closer posts one transaction per entry.
func (v *LedgerView) RemittedNonZero(remitted []Bucket) []Bucket {
	var out []Bucket
	for _, b := range remitted {
		if v.Entradas.Designados[b] != 0 {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator builds ledger views. SalaryCap, when positive, bounds the
// residual pastoral salary; zero means uncapped.
type Calculator struct {
	store    Store
	remitted []Bucket
	salaryCap int64
}

func NewCalculator(store Store, remitted []Bucket, salaryCap int64) *Calculator {
	if len(remitted) == 0 {
		remitted = DefaultRemittedBuckets()
	}
	return &Calculator{store: store, remitted: remitted, salaryCap: salaryCap}
}

// RemittedBuckets exposes the configured remittance set for the closer.
func (c *Calculator) RemittedBuckets() []Bucket { return c.remitted }

// BuildMonthlyLedger assembles the reconciliation view for one period.
func (c *Calculator) BuildMonthlyLedger(ctx context.Context, p Period) (*LedgerView, error) {
	if !p.Valid() {
		return nil, ErrInvalidPeriod
	}

	sum, err := c.store.MonthlySummary(ctx, p)
	if err != nil {
		return nil, err
	}
	// Missing report is not an error; the period is simply still open.
	report, err := c.store.GetReport(ctx, p)
	if err != nil {
		return nil, err
	}

	view := c.compute(p, sum)
	view.Report = report
	return view, nil
}

func (c *Calculator) compute(p Period, sum *MonthlySummary) *LedgerView {
	remittedSet := make(map[Bucket]bool, len(c.remitted))
	for _, b := range c.remitted {
		remittedSet[b] = true
	}

	designados := make(map[Bucket]int64, len(sum.ByBucket))
	var totalDesignados, remittedTotal int64
	for b, amount := range sum.ByBucket {
		designados[b] = amount
		totalDesignados += amount
		if remittedSet[b] {
			remittedTotal += amount
		}
	}

	base := sum.Diezmos + sum.Ofrendas
	totalIncome := base + sum.Anexos + sum.Otros + totalDesignados

	levy := NationalLevy(base)
	nationalTotal := levy + remittedTotal

	// Residual salary: whatever is left after the national remittance and
	// operating expenses, never negative, optionally capped.
	residual := totalIncome - nationalTotal - sum.GastosOperativos
	salary := residual
	if salary < 0 {
		salary = 0
	}
	if c.salaryCap > 0 && salary > c.salaryCap {
		salary = c.salaryCap
	}

	saldo := totalIncome - nationalTotal - sum.GastosOperativos - salary

	view := &LedgerView{
		Period: p,
		Entradas: EntradasView{
			Diezmos:            sum.Diezmos,
			Ofrendas:           sum.Ofrendas,
			Anexos:             sum.Anexos,
			Otros:              sum.Otros,
			BaseCongregacional: base,
			Designados:         designados,
			TotalDesignados:    totalDesignados,
			Total:              totalIncome,
		},
		Distribucion: DistribucionView{
			FondoNacionalBase:       levy,
			FondoNacionalDesignados: remittedTotal,
			FondoNacionalTotal:      nationalTotal,
			DisponibleLocal:         totalIncome - nationalTotal,
		},
		Gastos: GastosView{
			Operativos:           sum.GastosOperativos,
			PorCategoria:         sum.GastosPorCategoria,
			HonorariosRegistrado: sum.HonorariosPastoral,
		},
		Salario: SalarioView{
			Calculado:  salary,
			Registrado: sum.HonorariosPastoral,
			Diferencia: salary - sum.HonorariosPastoral,
		},
	}
	view.Balance = classify(totalIncome, saldo, salary, sum.HonorariosPastoral)
	return view
}

// =============================================================================
// CLASSIFICATION - deterministic decision table, order matters
// =============================================================================

func classify(totalIncome, saldo, calculado, registrado int64) BalanceView {
	abs := saldo
	if abs < 0 {
		abs = -abs
	}
	diff := calculado - registrado
	if diff < 0 {
		diff = -diff
	}

	switch {
	case totalIncome == 0:
		return BalanceView{
			SaldoCalculado: saldo,
			Status:         StatusSinEntradas,
			PuedeCerrar:    false,
			Mensaje:        "No hay entradas registradas en el período",
			Sugerencias: []string{
				"Cargue los registros de culto del mes antes de cerrar el período",
			},
		}

	case abs < BalanceEpsilon && diff < BalanceEpsilon:
		return BalanceView{
			SaldoCalculado: saldo,
			Status:         StatusBalanceado,
			PuedeCerrar:    true,
			Mensaje:        "El período está balanceado y puede cerrarse",
		}

	case abs < BalanceEpsilon && registrado == 0:
		return BalanceView{
			SaldoCalculado: saldo,
			Status:         StatusPendienteFactura,
			PuedeCerrar:    false,
			Mensaje:        fmt.Sprintf("Falta registrar la factura de honorarios pastorales por Gs. %d", calculado),
			Sugerencias: []string{
				fmt.Sprintf("Registre un gasto de honorarios pastorales por Gs. %d", calculado),
			},
		}

	case abs < BalanceEpsilon:
		return BalanceView{
			SaldoCalculado: saldo,
			Status:         StatusDiscrepancia,
			PuedeCerrar:    false,
			Mensaje: fmt.Sprintf("Los honorarios registrados (Gs. %d) no coinciden con el salario calculado (Gs. %d)",
				registrado, calculado),
			Sugerencias: []string{
				fmt.Sprintf("Corrija el gasto de honorarios a Gs. %d o revise los demás gastos del mes", calculado),
			},
		}

	// The balanced band is |saldo| < epsilon, so the first negative saldo
	// outside it is exactly -epsilon. The bound is inclusive: a negative
	// saldo is never a surplus.
	case saldo <= -BalanceEpsilon:
		return BalanceView{
			SaldoCalculado: saldo,
			Status:         StatusDeficit,
			PuedeCerrar:    false,
			Mensaje:        fmt.Sprintf("El período presenta un déficit de Gs. %d", -saldo),
			Sugerencias: []string{
				fmt.Sprintf("Revise los gastos o registre entradas adicionales para cubrir Gs. %d", -saldo),
				"Puede forzar el cierre; el déficit quedará registrado en el informe",
			},
		}

	default:
		return BalanceView{
			SaldoCalculado: saldo,
			Status:         StatusSuperavit,
			PuedeCerrar:    false,
			Mensaje:        fmt.Sprintf("El período presenta un superávit de Gs. %d", saldo),
			Sugerencias: []string{
				"Verifique los honorarios pastorales y gastos del mes",
				"Puede forzar el cierre; el superávit quedará registrado en el informe",
			},
		}
	}
}
