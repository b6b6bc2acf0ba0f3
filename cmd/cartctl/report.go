package main

import (
	"fmt"

	"github.com/kartshart/kartshart-backend/internal/app/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	cartsSheet    = "Carts"
	itemsSheet    = "Items"
	productsSheet = "Products"
)

var (
	cartsHeader    = []interface{}{"Cart ID", "Owner", "Active", "Items", "Quantity", "Total", "Updated At"}
	itemsHeader    = []interface{}{"Cart ID", "Item ID", "Product", "Variation Key", "Quantity", "Unit Price", "Subtotal", "Stock Status", "Active"}
	productsHeader = []interface{}{"Product ID", "Name", "Price", "Stock", "Variations", "In Carts", "Remaining"}
)

// writeCartReport writes one row per cart, item and catalog product to path.
// Cart totals count active items only; the Items sheet lists every item.
func writeCartReport(path string, carts []model.Cart, products []model.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), cartsSheet); err != nil {
		return fmt.Errorf("failed to name carts sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return fmt.Errorf("failed to create items sheet: %w", err)
	}
	if _, err := f.NewSheet(productsSheet); err != nil {
		return fmt.Errorf("failed to create products sheet: %w", err)
	}
	if err := setRow(f, cartsSheet, 1, cartsHeader); err != nil {
		return err
	}
	if err := setRow(f, itemsSheet, 1, itemsHeader); err != nil {
		return err
	}

	if err := setRow(f, productsSheet, 1, productsHeader); err != nil {
		return err
	}

	reserved := make(map[uint]int)
	itemRow := 2
	for i, cart := range carts {
		total := decimal.Zero
		quantity := 0
		active := 0
		for j := range cart.Items {
			item := &cart.Items[j]
			if item.IsActive {
				total = total.Add(item.SubTotal())
				quantity += item.Quantity
				active++
				if cart.IsActive {
					reserved[item.ProductID] += item.Quantity
				}
			}

			if err := setRow(f, itemsSheet, itemRow, []interface{}{
				cart.ID,
				item.ID,
				item.Product.Name,
				item.VariationKey,
				item.Quantity,
				item.PriceAtAddition.InexactFloat64(),
				item.SubTotal().InexactFloat64(),
				string(item.StockStatus),
				item.IsActive,
			}); err != nil {
				return err
			}
			itemRow++
		}

		if err := setRow(f, cartsSheet, i+2, []interface{}{
			cart.ID,
			cart.OwnerKey,
			cart.IsActive,
			active,
			quantity,
			total.Round(2).InexactFloat64(),
			cart.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		}); err != nil {
			return err
		}
	}

	for i := range products {
		product := &products[i]
		if err := setRow(f, productsSheet, i+2, []interface{}{
			product.ID,
			product.Name,
			product.Price.InexactFloat64(),
			product.Stock,
			len(product.Variations),
			reserved[product.ID],
			product.Stock - reserved[product.ID],
		}); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
