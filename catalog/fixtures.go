package catalog

// Fixtures returns fresh copies of the seed data shared by every Store.
func Fixtures() ([]Flight, []MealOrder, []StockCountItem, []ERPItem) {
	flights := []Flight{
		{FlightNo: "EK0202", FlightDate: "21-Jan-2024", MflID: 1, RegistrationNumber: "A6-ABC", ServiceType: "J", FlightStatus: "FO"},
		{FlightNo: "EK0203", FlightDate: "20-Jan-2024", MflID: 2, RegistrationNumber: "A6-DEF", ServiceType: "J", FlightStatus: "FF"},
		{FlightNo: "EK0500", FlightDate: "01-Jun-2025", MflID: 4, RegistrationNumber: "A6-GHI", ServiceType: "P", FlightStatus: "FO"},
	}

	meals := []MealOrder{
		{MflID: 1, F: 10, J: 20, W: 0, Y: 44},
		{MflID: 2, F: 2, J: 20, W: 0, Y: 55},
		{MflID: 4, F: 12, J: 20, W: 0, Y: 66},
	}

	stock := []StockCountItem{
		{"TXN001", "ITEM001", "Chicken Biryani", 100, 95, 50, 48, "N"},
		{"TXN001", "ITEM002", "Vegetable Curry", 75, 72, 30, 29, "N"},
		{"TXN001", "ITEM003", "Rice Pilaf", 120, 118, 60, 58, "N"},
		{"TXN002", "ITEM004", "Naan Bread", 200, 195, 100, 97, "N"},
		{"TXN002", "ITEM005", "Fruit Salad", 80, 78, 40, 39, "N"},
		{"TXN003", "ITEM006", "Beef Steak", 60, 58, 25, 24, "N"},
		{"TXN004", "ITEM007", "Fish Curry", 90, 87, 45, 43, "N"},
		{"TXN004", "ITEM008", "Dal Makhani", 110, 108, 55, 53, "N"},
		{"TXN004", "ITEM009", "Raita", 150, 147, 75, 73, "N"},
		{"TXN005", "ITEM010", "Paneer Tikka", 70, 68, 35, 34, "N"},
		{"TXN005", "ITEM011", "Mixed Vegetables", 85, 83, 42, 41, "N"},
	}

	erp := []ERPItem{
		{"TXN001", "ITEM001", "Chicken Biryani", 100, 98, 50, 49},
		{"TXN001", "ITEM002", "Vegetable Curry", 70, 72, 30, 28},
		{"TXN001", "ITEM003", "Rice Pilaf", 120, 118, 60, 59},
		{"TXN002", "ITEM004", "Naan Bread", 200, 198, 100, 99},
		{"TXN002", "ITEM005", "Fruit Salad", 80, 79, 40, 39},
		{"TXN003", "ITEM006", "Beef Steak", 60, 59, 25, 24},
		{"TXN004", "ITEM007", "Fish Curry", 90, 88, 45, 44},
		{"TXN004", "ITEM008", "Dal Makhani", 110, 109, 55, 54},
		{"TXN004", "ITEM009", "Raita", 150, 148, 75, 74},
		{"TXN005", "ITEM010", "Paneer Tikka", 70, 69, 35, 34},
		{"TXN005", "ITEM011", "Mixed Vegetables", 85, 84, 42, 41},
	}

	return flights, meals, stock, erp
}
