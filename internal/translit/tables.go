package translit

// RuEn maps lowercase Russian letters to their Latin spelling as used on
// international travel documents. Hard and soft signs are dropped.
var RuEn = map[string]string{
	"щ": "shch",
	"ш": "sh",
	"ч": "ch",
	"я": "ya",
	"ё": "ye",
	"ю": "yu",
	"а": "a",
	"б": "b",
	"в": "v",
	"г": "g",
	"д": "d",
	"е": "e",
	"ж": "zh",
	"з": "z",
	"и": "i",
	"й": "y",
	"х": "kh",
	"к": "k",
	"л": "l",
	"м": "m",
	"н": "n",
	"о": "o",
	"п": "p",
	"р": "r",
	"ц": "ts",
	"с": "s",
	"т": "t",
	"у": "u",
	"ф": "f",
	"ь": "",
	"ы": "y",
	"ъ": "",
	"э": "e",
}

// EnRu maps Latin letter groups back to Russian. Multi-letter groups such as
// "yy" and "ay" cover the common adjective endings.
var EnRu = map[string]string{
	"shch": "щ",
	"sh":   "ш",
	"ch":   "ч",
	"ya":   "я",
	"yay":  "яй",
	"ye":   "ё",
	"yu":   "ю",
	"a":    "а",
	"ay":   "ай",
	"b":    "б",
	"v":    "в",
	"g":    "г",
	"d":    "д",
	"e":    "е",
	"ey":   "ей",
	"zh":   "ж",
	"z":    "з",
	"i":    "и",
	"iy":   "ий",
	"kh":   "х",
	"k":    "к",
	"l":    "л",
	"m":    "м",
	"n":    "н",
	"o":    "о",
	"oy":   "ой",
	"p":    "п",
	"r":    "р",
	"ts":   "ц",
	"s":    "с",
	"t":    "т",
	"u":    "у",
	"uy":   "уй",
	"f":    "ф",
	"y":    "ы",
	"yy":   "ый",
}
