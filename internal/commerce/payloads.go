package commerce

import "github.com/avolkov-go/pizzeria-bot/internal/geo"

// Wire shapes of the Elastic Path v2 API, reduced to the fields the bot reads.

type displayPrice struct {
	WithTax struct {
		Amount    int64  `json:"amount"`
		Formatted string `json:"formatted"`
		Unit      struct {
			Amount    int64  `json:"amount"`
			Formatted string `json:"formatted"`
		} `json:"unit"`
		Value struct {
			Amount    int64  `json:"amount"`
			Formatted string `json:"formatted"`
		} `json:"value"`
	} `json:"with_tax"`
}

type productData struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Relationships struct {
		MainImage struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"main_image"`
	} `json:"relationships"`
	Meta struct {
		DisplayPrice displayPrice `json:"display_price"`
	} `json:"meta"`
}

func (d productData) toProduct() Product {
	return Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Price: Amount{
			Kopecks:   d.Meta.DisplayPrice.WithTax.Amount,
			Formatted: d.Meta.DisplayPrice.WithTax.Formatted,
		},
		ImageFileID: d.Relationships.MainImage.Data.ID,
	}
}

type productsResponse struct {
	Data []productData `json:"data"`
}

type productResponse struct {
	Data productData `json:"data"`
}

type cartItemData struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Meta        struct {
		DisplayPrice displayPrice `json:"display_price"`
	} `json:"meta"`
}

func (d cartItemData) toCartLine() CartLine {
	return CartLine{
		ID:          d.ID,
		ProductID:   d.ProductID,
		Name:        d.Name,
		Description: d.Description,
		Quantity:    d.Quantity,
		UnitPrice: Amount{
			Kopecks:   d.Meta.DisplayPrice.WithTax.Unit.Amount,
			Formatted: d.Meta.DisplayPrice.WithTax.Unit.Formatted,
		},
		LineTotal: Amount{
			Kopecks:   d.Meta.DisplayPrice.WithTax.Value.Amount,
			Formatted: d.Meta.DisplayPrice.WithTax.Value.Formatted,
		},
	}
}

type cartItemsResponse struct {
	Data []cartItemData `json:"data"`
}

type cartResponse struct {
	Data struct {
		Meta struct {
			DisplayPrice displayPrice `json:"display_price"`
		} `json:"meta"`
	} `json:"data"`
}

type fileResponse struct {
	Data struct {
		Link struct {
			Href string `json:"href"`
		} `json:"link"`
	} `json:"data"`
}

type createdResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type pizzeriaData struct {
	ID        string  `json:"id"`
	Alias     string  `json:"alias"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	CourierID int64   `json:"courier_telegram_id"`
}

func (d pizzeriaData) toPizzeria() Pizzeria {
	return Pizzeria{
		ID:        d.ID,
		Alias:     d.Alias,
		Address:   d.Address,
		Coord:     geo.Coordinate{Lat: d.Latitude, Lon: d.Longitude},
		CourierID: d.CourierID,
	}
}

type pizzeriasResponse struct {
	Data []pizzeriaData `json:"data"`
}

type pizzeriaResponse struct {
	Data pizzeriaData `json:"data"`
}
