/*
buckets.go - Contribution buckets and fund routing

PURPOSE:
  Every worship contribution is tagged with a bucket. Buckets decide how
  money flows to the national level:

    - Congregational base (diezmo, ofrenda): 10% goes to the national fund,
      the rest stays local.
    - Fully remitted buckets (misiones, lazos_amor, ...): 100% goes to the
      named designated fund.
    - anexos and otros stay local entirely.

  Which buckets are fully remitted is deployment configuration; the
  10%-vs-100% split itself is a hard business rule.

SEE ALSO:
  - calculator.go: Applies the split when building the monthly ledger
  - closer.go: Posts one transaction per remitted bucket at close time
*/
package treasury

// Bucket tags a worship contribution with its destination category.
type Bucket string

const (
	BucketDiezmo           Bucket = "diezmo"
	BucketOfrenda          Bucket = "ofrenda"
	BucketAnexos           Bucket = "anexos"
	BucketOtros            Bucket = "otros"
	BucketMisiones         Bucket = "misiones"
	BucketLazosAmor        Bucket = "lazos_amor"
	BucketMisionPosible    Bucket = "mision_posible"
	BucketAPY              Bucket = "apy"
	BucketInstitutoBiblico Bucket = "instituto_biblico"
	BucketDiezmoPastoral   Bucket = "diezmo_pastoral"
	BucketCaballeros       Bucket = "caballeros"
)

// DefaultRemittedBuckets is the standard set of fully remitted buckets.
// Deployments can override it via configuration.
func DefaultRemittedBuckets() []Bucket {
	return []Bucket{
		BucketMisiones,
		BucketLazosAmor,
		BucketMisionPosible,
		BucketAPY,
		BucketInstitutoBiblico,
		BucketDiezmoPastoral,
		BucketCaballeros,
	}
}

// BucketFund names the designated fund a remitted bucket is credited to.
type BucketFund struct {
	Name string
	Type FundType
}

var bucketFunds = map[Bucket]BucketFund{
	BucketMisiones:         {Name: "Misiones", Type: FundMisionero},
	BucketLazosAmor:        {Name: "Lazos de Amor", Type: FundDesignado},
	BucketMisionPosible:    {Name: "Misión Posible", Type: FundDesignado},
	BucketAPY:              {Name: "APY", Type: FundDesignado},
	BucketInstitutoBiblico: {Name: "Instituto Bíblico", Type: FundEducativo},
	BucketDiezmoPastoral:   {Name: "Diezmo Pastoral", Type: FundDesignado},
	BucketCaballeros:       {Name: "Caballeros", Type: FundDesignado},
}

// FundFor returns the designated fund for a remitted bucket. Buckets without
// a mapping (congregational base, anexos, otros) fall back to a designado
// fund named after the bucket, so a deployment-added bucket still routes.
func FundFor(b Bucket) BucketFund {
	if f, ok := bucketFunds[b]; ok {
		return f
	}
	return BucketFund{Name: string(b), Type: FundDesignado}
}

// NationalFundName is the fund receiving the 10% levy and all remittances
// rolled up at the national level.
const NationalFundName = "Fondo Nacional"
