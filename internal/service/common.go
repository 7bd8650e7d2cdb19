package service

import "fmt"

func validateNonNegativeInt(name string, value int) error {
	if value < 0 {
		return fmt.Errorf("%s must be >= 0", name)
	}
	return nil
}

func validateNonNegativeFloat(name string, value float64) error {
	if value < 0 {
		return fmt.Errorf("%s must be >= 0", name)
	}
	return nil
}

// validateMacros checks protein, carbs, fat and fiber in that order.
func validateMacros(protein, carbs, fat, fiber float64) error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"protein", protein},
		{"carbs", carbs},
		{"fat", fat},
		{"fiber", fiber},
	} {
		if err := validateNonNegativeFloat(v.name, v.value); err != nil {
			return err
		}
	}
	return nil
}
