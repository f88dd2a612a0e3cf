// Package reports holds the fixed analytical queries (ex1..ex11) run against
// a loaded SQLite store. Every query is read-only and parameterized; external
// strings are never spliced into SQL text.
package reports

// Report is one named query.
type Report struct {
	Name        string
	Description string
	Params      []string // names of positional parameters, in order
	SQL         string
}

const totals = `
FROM OrderDetail o
JOIN Customer c ON o.CustomerID = c.CustomerID
JOIN Product p ON o.ProductID = p.ProductID`

const quarter = `CASE
		WHEN CAST(strftime('%m', o.OrderDate) AS INTEGER) IN (1, 2, 3) THEN 'Q1'
		WHEN CAST(strftime('%m', o.OrderDate) AS INTEGER) IN (4, 5, 6) THEN 'Q2'
		WHEN CAST(strftime('%m', o.OrderDate) AS INTEGER) IN (7, 8, 9) THEN 'Q3'
		ELSE 'Q4'
	END`

const quarterlyTotals = `customertemp AS (
	SELECT
		` + quarter + ` AS Quarter,
		CAST(strftime('%Y', o.OrderDate) AS INTEGER) AS Year,
		o.CustomerID,
		ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered)) AS Total
	FROM OrderDetail o
	JOIN Product p ON o.ProductID = p.ProductID
	GROUP BY Quarter, Year, o.CustomerID
)`

var catalog = []Report{
	{
		Name:        "ex1",
		Description: "order lines of one customer with line totals",
		Params:      []string{"customer name"},
		SQL: `SELECT c.FirstName || ' ' || c.LastName AS Name, p.ProductName, o.OrderDate,
	p.ProductUnitPrice, o.QuantityOrdered,
	ROUND(p.ProductUnitPrice * o.QuantityOrdered, 2) AS Total` + totals + `
WHERE c.FirstName || ' ' || c.LastName = ?
ORDER BY o.OrderID`,
	},
	{
		Name:        "ex2",
		Description: "total spend of one customer",
		Params:      []string{"customer name"},
		SQL: `SELECT c.FirstName || ' ' || c.LastName AS Name,
	ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered), 2) AS Total` + totals + `
WHERE c.FirstName || ' ' || c.LastName = ?
GROUP BY o.CustomerID`,
	},
	{
		Name:        "ex3",
		Description: "total spend per customer, highest first",
		SQL: `SELECT c.FirstName || ' ' || c.LastName AS Name,
	ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered), 2) AS Total` + totals + `
GROUP BY o.CustomerID
ORDER BY Total DESC, Name`,
	},
	{
		Name:        "ex4",
		Description: "total spend per region, highest first",
		SQL: `SELECT r.Region,
	ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered), 2) AS Total` + totals + `
JOIN Country co ON c.CountryID = co.CountryID
JOIN Region r ON co.RegionID = r.RegionID
GROUP BY r.Region
ORDER BY Total DESC, r.Region`,
	},
	{
		Name:        "ex5",
		Description: "total spend per country (whole units), highest first",
		SQL: `SELECT co.Country,
	ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered)) AS CountryTotal` + totals + `
JOIN Country co ON c.CountryID = co.CountryID
GROUP BY co.Country
ORDER BY CountryTotal DESC, co.Country`,
	},
	{
		Name:        "ex6",
		Description: "countries dense-ranked by spend within their region",
		SQL: `SELECT r.Region, co.Country,
	ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered)) AS CountryTotal,
	DENSE_RANK() OVER (
		PARTITION BY r.Region
		ORDER BY SUM(p.ProductUnitPrice * o.QuantityOrdered) DESC
	) AS CountryRegionalRank` + totals + `
JOIN Country co ON c.CountryID = co.CountryID
JOIN Region r ON co.RegionID = r.RegionID
GROUP BY r.Region, co.Country
ORDER BY r.Region, CountryRegionalRank, co.Country`,
	},
	{
		Name:        "ex7",
		Description: "top country per region",
		SQL: `WITH CountryRegion AS (
	SELECT r.Region, co.Country,
		ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered)) AS CountryTotal,
		RANK() OVER (
			PARTITION BY r.Region
			ORDER BY ROUND(SUM(p.ProductUnitPrice * o.QuantityOrdered)) DESC
		) AS CountryRegionalRank` + totals + `
	JOIN Country co ON c.CountryID = co.CountryID
	JOIN Region r ON co.RegionID = r.RegionID
	GROUP BY r.Region, co.Country
)
SELECT * FROM CountryRegion
WHERE CountryRegionalRank = 1
ORDER BY Region, Country`,
	},
	{
		Name:        "ex8",
		Description: "spend per customer per quarter",
		SQL: `WITH ` + quarterlyTotals + `
SELECT * FROM customertemp
ORDER BY Year, Quarter, CustomerID`,
	},
	{
		Name:        "ex9",
		Description: "top 5 customers per quarter",
		SQL: `WITH ` + quarterlyTotals + `,
ranktemp AS (
	SELECT *, RANK() OVER (PARTITION BY ct.Quarter, ct.Year ORDER BY ct.Total DESC) AS CustomerRank
	FROM customertemp AS ct
)
SELECT * FROM ranktemp
WHERE CustomerRank < 6
ORDER BY Year, Quarter, CustomerRank, CustomerID`,
	},
	{
		Name:        "ex10",
		Description: "months ranked by spend across all years",
		SQL: `WITH months AS (
	SELECT strftime('%m', o.OrderDate) AS m,
		SUM(ROUND(p.ProductUnitPrice * o.QuantityOrdered)) AS Total
	FROM OrderDetail o
	JOIN Product p ON o.ProductID = p.ProductID
	GROUP BY m
)
SELECT CASE m
		WHEN '01' THEN 'January'
		WHEN '02' THEN 'February'
		WHEN '03' THEN 'March'
		WHEN '04' THEN 'April'
		WHEN '05' THEN 'May'
		WHEN '06' THEN 'June'
		WHEN '07' THEN 'July'
		WHEN '08' THEN 'August'
		WHEN '09' THEN 'September'
		WHEN '10' THEN 'October'
		WHEN '11' THEN 'November'
		WHEN '12' THEN 'December'
	END AS Month,
	Total,
	RANK() OVER (ORDER BY Total DESC) AS TotalRank
FROM months
ORDER BY TotalRank, m`,
	},
	{
		Name:        "ex11",
		Description: "longest gap in days between consecutive orders per customer",
		// Bare OrderDate and PreviousOrderDate come from the row holding the MAX.
		SQL: `WITH lagt AS (
	SELECT c.CustomerID, c.FirstName, c.LastName, co.Country, o.OrderDate,
		LAG(o.OrderDate, 1) OVER (PARTITION BY c.CustomerID ORDER BY o.OrderDate) AS PreviousOrderDate
	FROM OrderDetail o
	JOIN Customer c ON o.CustomerID = c.CustomerID
	JOIN Country co ON c.CountryID = co.CountryID
)
SELECT CustomerID, FirstName, LastName, Country,
	MAX(julianday(OrderDate) - julianday(PreviousOrderDate)) AS MaxDaysWithoutOrder,
	OrderDate, PreviousOrderDate
FROM lagt
GROUP BY CustomerID, FirstName, LastName, Country
ORDER BY MaxDaysWithoutOrder DESC, FirstName DESC`,
	},
}

// All returns the catalogue in name order (ex1..ex11).
func All() []Report {
	out := make([]Report, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the report called name.
func Lookup(name string) (Report, bool) {
	for _, r := range catalog {
		if r.Name == name {
			return r, true
		}
	}
	return Report{}, false
}
